package middleware

import (
	"github.com/labstack/echo/v4"
)

// ProxyIDMiddleware adds the diagnostic X-Proxy header to all responses so
// clients can tell which proxy instance served them.
func ProxyIDMiddleware(proxyName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-Proxy", proxyName)
			return next(c)
		}
	}
}
