package objects

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arkturian/share-proxy/internal/api/common"
	"github.com/arkturian/share-proxy/pkg/cache"
	"github.com/arkturian/share-proxy/pkg/fetch"
	"github.com/arkturian/share-proxy/pkg/logging"
	"github.com/arkturian/share-proxy/pkg/resolve"
)

const cacheControl = "public, max-age=86400"

// UpstreamBaseResolver derives the storage API base URL for a request host.
type UpstreamBaseResolver func(host string) string

// Handler proxies external storage objects, restricted to public ones.
type Handler struct {
	store        cache.Store
	fetcher      *fetch.HTTPFetcher
	apiKey       string
	maxBytes     int64
	upstreamBase UpstreamBaseResolver
}

// NewHandler creates a new objects handler
func NewHandler(store cache.Store, fetcher *fetch.HTTPFetcher, apiKey string, maxBytes int64, upstreamBase UpstreamBaseResolver) *Handler {
	return &Handler{
		store:        store,
		fetcher:      fetcher,
		apiKey:       apiKey,
		maxBytes:     maxBytes,
		upstreamBase: upstreamBase,
	}
}

// GetObject handles GET /objects
func (h *Handler) GetObject(c echo.Context) error {
	objectID, err := strconv.Atoi(c.QueryParam("id"))
	if err != nil || objectID <= 0 {
		return common.BadRequest(c, "Missing object ID. Usage: /objects?id={object_id}", nil)
	}

	key := fmt.Sprintf("obj_%d", objectID)
	bypassCache := c.QueryParam("no_cache") != ""

	if !bypassCache {
		if entry, err := h.store.Get(key); err == nil && entry.Meta != nil {
			c.Response().Header().Set("X-External-URI", entry.Meta.ExternalURI)
			return common.ServeMedia(c, entry.Meta.MimeType, cacheControl, "HIT", entry.Data)
		}
	}

	client := resolve.NewUpstreamClient(h.upstreamBase(c.Request().Host), h.apiKey)

	meta, err := client.PublicObject(c.Request().Context(), objectID)
	if err != nil {
		var uerr *resolve.UpstreamError
		switch {
		case errors.Is(err, resolve.ErrNotFound):
			return common.NotFound(c, "Failed to fetch object metadata", common.Fields{"object_id": objectID})
		case errors.As(err, &uerr) && uerr.StatusCode != 0:
			return common.UpstreamFailure(c, uerr.StatusCode, "Failed to fetch object metadata", common.Fields{"object_id": objectID})
		default:
			logging.Logger.Error("Upstream metadata lookup failed",
				zap.Int("object_id", objectID),
				zap.Error(err))
			return common.UpstreamFailure(c, 0, "Failed to fetch object metadata", common.Fields{"object_id": objectID})
		}
	}

	if !meta.IsPublic {
		return common.Forbidden(c, "Access denied. This object is not public.", common.Fields{"object_id": objectID})
	}
	if meta.ExternalURI == "" {
		return common.BadRequest(c, "This object does not have an external URI", common.Fields{"object_id": objectID})
	}

	src, err := h.fetcher.Fetch(c.Request().Context(), meta.ExternalURI)
	if err != nil {
		var ferr *fetch.Error
		if errors.As(err, &ferr) && ferr.StatusCode != 0 {
			return common.UpstreamFailure(c, ferr.StatusCode, "Failed to fetch external file",
				common.Fields{"external_uri": meta.ExternalURI, "http_code": ferr.StatusCode})
		}
		return common.UpstreamFailure(c, 0, "Failed to fetch external file",
			common.Fields{"external_uri": meta.ExternalURI})
	}

	// The origin's content type wins over the stored record.
	mimeType := src.ContentType
	if mimeType == "" {
		mimeType = meta.MimeType
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := h.store.Put(key, src.Data, &cache.Metadata{
		MimeType:    mimeType,
		ExternalURI: meta.ExternalURI,
		CachedAt:    time.Now().Unix(),
	}); err != nil {
		logging.LogCacheFailure("put", key, err)
	}

	// Eviction runs off the request path so the response is never delayed.
	go func() {
		if err := h.store.EvictIfOverBudget(h.maxBytes); err != nil {
			logging.LogCacheFailure("evict", key, err)
		}
	}()

	c.Response().Header().Set("X-External-URI", meta.ExternalURI)
	return common.ServeMedia(c, mimeType, cacheControl, "MISS", src.Data)
}
