package events

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the events proxy routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.GET("", handler.GetEventMedia)
}
