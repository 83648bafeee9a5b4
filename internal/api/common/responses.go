package common

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Fields carries contextual values attached to an error body, e.g.
// {"error": "...", "object_id": 42}.
type Fields map[string]interface{}

// Error sends the JSON error envelope with a stable "error" field plus any
// contextual fields. Context must never include internal file paths or
// upstream credentials.
func Error(c echo.Context, code int, message string, fields Fields) error {
	body := map[string]interface{}{"error": message}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(code, body)
}

// BadRequest sends a 400 error response
func BadRequest(c echo.Context, message string, fields Fields) error {
	return Error(c, http.StatusBadRequest, message, fields)
}

// Forbidden sends a 403 error response
func Forbidden(c echo.Context, message string, fields Fields) error {
	return Error(c, http.StatusForbidden, message, fields)
}

// NotFound sends a 404 error response
func NotFound(c echo.Context, message string, fields Fields) error {
	return Error(c, http.StatusNotFound, message, fields)
}

// UpstreamFailure propagates an upstream status code when one is known,
// else answers 502.
func UpstreamFailure(c echo.Context, upstreamStatus int, message string, fields Fields) error {
	code := http.StatusBadGateway
	if upstreamStatus >= 400 {
		code = upstreamStatus
	}
	return Error(c, code, message, fields)
}

// ServeMedia writes a successful media response with the proxy's standard
// headers. xCache is "HIT" or "MISS"; empty means the header is omitted.
func ServeMedia(c echo.Context, contentType, cacheControl, xCache string, data []byte) error {
	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, cacheControl)
	if xCache != "" {
		h.Set("X-Cache", xCache)
	}
	return c.Blob(http.StatusOK, contentType, data)
}
