package imageproxy

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arkturian/share-proxy/internal/api/common"
	"github.com/arkturian/share-proxy/pkg/cache"
	"github.com/arkturian/share-proxy/pkg/fetch"
	"github.com/arkturian/share-proxy/pkg/logging"
	"github.com/arkturian/share-proxy/pkg/resolve"
	"github.com/arkturian/share-proxy/pkg/transform"
)

const (
	derivativeCacheControl = "public, max-age=31536000, immutable"
	originalCacheControl   = "public, max-age=86400"
)

// Handler proxies arbitrary image URLs with optional transformation.
type Handler struct {
	store   cache.Store
	fetcher *fetch.HTTPFetcher
}

// NewHandler creates a new image proxy handler
func NewHandler(store cache.Store, fetcher *fetch.HTTPFetcher) *Handler {
	return &Handler{
		store:   store,
		fetcher: fetcher,
	}
}

// GetImage handles GET /imageproxy
func (h *Handler) GetImage(c echo.Context) error {
	rawURL := strings.TrimSpace(c.QueryParam("url"))
	if rawURL == "" {
		return common.BadRequest(c, "Missing url parameter", nil)
	}
	if err := resolve.ValidateURL(rawURL); err != nil {
		return common.BadRequest(c, "Invalid URL", nil)
	}

	spec, err := common.BindTransformSpec(c)
	if err != nil {
		return common.BadRequest(c, "Invalid format. Supported: jpg, png, webp", nil)
	}

	ext := spec.Format
	if ext == "" {
		ext = "jpg"
	}
	key := cache.Key(rawURL, spec.Width, spec.Height, spec.Format, spec.Quality) + "." + ext

	if entry, err := h.store.Get(key); err == nil {
		return common.ServeMedia(c, fetch.MIMEType(ext), derivativeCacheControl, "HIT", entry.Data)
	}

	src, err := h.fetcher.Fetch(c.Request().Context(), rawURL)
	if err != nil {
		return h.fetchFailed(c, rawURL, err)
	}

	if spec.IsNoop() {
		if err := h.store.Put(key, src.Data, nil); err != nil {
			logging.LogCacheFailure("put", key, err)
		}
		return common.ServeMedia(c, h.originalContentType(src, rawURL), originalCacheControl, "MISS", src.Data)
	}

	out, terr := transform.Transform(src.Data, spec)
	if terr != nil {
		// Soft failure: serve the fetched bytes unmodified.
		logging.Logger.Warn("Transform failed, serving original",
			zap.String("url", rawURL),
			zap.Error(terr))
		return common.ServeMedia(c, h.originalContentType(src, rawURL), originalCacheControl, "", src.Data)
	}

	if err := h.store.Put(key, out, nil); err != nil {
		logging.LogCacheFailure("put", key, err)
	}

	return common.ServeMedia(c, fetch.MIMEType(ext), derivativeCacheControl, "MISS", out)
}

// fetchFailed maps a fetch failure onto the HTTP surface: absent resources
// are 404, everything else propagates the upstream status or answers 502.
func (h *Handler) fetchFailed(c echo.Context, rawURL string, err error) error {
	var ferr *fetch.Error
	if errors.As(err, &ferr) {
		switch {
		case ferr.StatusCode == http.StatusNotFound || ferr.StatusCode == http.StatusGone:
			return common.NotFound(c, "Failed to fetch image", common.Fields{"url": rawURL})
		case ferr.StatusCode != 0:
			return common.UpstreamFailure(c, ferr.StatusCode, "Failed to fetch image", common.Fields{"url": rawURL, "http_code": ferr.StatusCode})
		}
	}
	return common.UpstreamFailure(c, 0, "Failed to fetch image", common.Fields{"url": rawURL})
}

// originalContentType prefers the origin's content type and falls back to
// the URL's file extension.
func (h *Handler) originalContentType(src *fetch.Result, rawURL string) string {
	if src.ContentType != "" {
		return src.ContentType
	}
	if u, err := url.Parse(rawURL); err == nil {
		return fetch.MIMEType(path.Ext(u.Path))
	}
	return "application/octet-stream"
}
