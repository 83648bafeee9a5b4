package imageproxy

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the generic URL proxy routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.GET("", handler.GetImage)
}
