package objects

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the object proxy routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.GET("", handler.GetObject)
}
