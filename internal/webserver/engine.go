package webserver

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/extract"
	"github.com/mdouchement/chunkstore/internal/service"
	"github.com/mdouchement/chunkstore/internal/storage"
	middlewarepkg "github.com/mdouchement/chunkstore/internal/webserver/middleware"
	"github.com/mdouchement/logger"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Version  string
	Logger   logger.Logger
	Database database.Client
	Storage  storage.Backend
	Uploads  *service.Uploads
	//
	ChunkSize         int
	UploadConcurrency int
	ReadAhead         int
	MaxUploadBytes    int64
	MaxExtractBytes   int64
	Extractor         service.TextExtractor
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true

	engine.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		// Raw downloads keep their Content-Length.
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/file/:id"
		},
	}))
	engine.Use(middlewarepkg.Logger(ctrl.Logger))

	engine.HTTPErrorHandler = middlewarepkg.NewHTTPErrorHandler(ctrl.Logger)

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	//
	//
	//

	router := engine.Group("")

	// Generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})

	// Files
	//
	if ctrl.Extractor == nil {
		ctrl.Extractor = extract.NewPDF()
	}
	file := file{
		logger:          ctrl.Logger,
		catalog:         service.NewCatalog(ctrl.Database),
		writer:          service.NewObjectWriter(ctrl.Database, ctrl.Storage, ctrl.Uploads, ctrl.ChunkSize, ctrl.UploadConcurrency),
		reader:          service.NewObjectReader(ctrl.Database, ctrl.Storage, ctrl.ReadAhead),
		extractor:       ctrl.Extractor,
		maxUploadBytes:  ctrl.MaxUploadBytes,
		maxExtractBytes: ctrl.MaxExtractBytes,
	}
	router.POST("/upload", file.Upload)
	router.GET("/files", file.List)
	router.HEAD("/file/:id", file.Show)
	router.GET("/file/:id", file.Download)
	router.GET("/file/:id/text", file.Text)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}
