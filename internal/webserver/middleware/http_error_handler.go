package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/chunkstore/internal/webserver/weberror"
	"github.com/mdouchement/logger"
)

// NewHTTPErrorHandler is a middleware that formats rendered errors.
func NewHTTPErrorHandler(log logger.Logger) func(err error, c echo.Context) {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			log.Errorf("%s %s: %+v", c.Request().Method, c.Request().URL.Path, err)
			return
		}

		var werr *weberror.Error
		switch e := err.(type) {
		case *echo.HTTPError:
			message := http.StatusText(e.Code)
			if m, ok := e.Message.(string); ok {
				message = m
			}
			werr = weberror.New(e.Code, message).(*weberror.Error)
		default:
			werr = weberror.From(err)
		}

		log.Errorf("%+v", err)
		if err2 := c.JSON(weberror.StatusCode(werr), werr); err2 != nil {
			log.Errorf("HTTPErrorHandler: %s", err2)
		}
	}
}
