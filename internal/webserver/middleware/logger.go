package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
)

// Logger logs one line per served request.
func Logger(log logger.Logger) echo.MiddlewareFunc {
	log = log.WithPrefix("[webserver]")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler render the response so the logged status is the final one.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			log.Infof("%s %s %d %s (%d bytes)", req.Method, req.URL.Path, res.Status, time.Since(start), res.Size)
			return nil
		}
	}
}
