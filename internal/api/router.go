package api

import (
	"github.com/datallboy/addonsync/internal/api/controllers"
	"github.com/datallboy/addonsync/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	runs := &controllers.RunsController{App: app}
	cache := &controllers.CacheController{App: app}

	g := e.Group("/api")
	g.POST("/runs", runs.Create)
	g.GET("/runs", runs.List)
	g.GET("/runs/:id", runs.Get)
	g.DELETE("/runs/:id", runs.Cancel)

	g.GET("/cache", cache.List)
}
