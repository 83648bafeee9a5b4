package events

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
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

// Derivative keys encode the transform, so cached entries never go stale.
const cacheControl = "public, max-age=31536000, immutable"

// Handler serves media for events stored on the local filesystem.
type Handler struct {
	mediaRoot string
	store     cache.Store
}

// NewHandler creates a new events handler
func NewHandler(mediaRoot string, store cache.Store) *Handler {
	return &Handler{
		mediaRoot: mediaRoot,
		store:     store,
	}
}

// GetEventMedia handles GET /events
func (h *Handler) GetEventMedia(c echo.Context) error {
	eventID, err := strconv.Atoi(c.QueryParam("event_id"))
	if err != nil || eventID <= 0 {
		return common.BadRequest(c, "Missing event_id parameter", nil)
	}

	spec, err := common.BindTransformSpec(c)
	if err != nil {
		return common.BadRequest(c, "Invalid format. Supported: jpg, png, webp", common.Fields{"event_id": eventID})
	}

	sourcePath, item, err := resolve.ResolveEventMedia(h.mediaRoot, eventID)
	if err != nil {
		switch {
		case errors.Is(err, resolve.ErrEventNotFound):
			return common.NotFound(c, "Event not found", common.Fields{"event_id": eventID})
		case errors.Is(err, resolve.ErrNoMedia):
			return common.NotFound(c, "No media found for event", common.Fields{"event_id": eventID})
		case errors.Is(err, resolve.ErrMediaFileMissing):
			return common.NotFound(c, "Media file not found", common.Fields{"event_id": eventID, "filename": item.Filename})
		default:
			logging.Logger.Error("Failed to resolve event media",
				zap.Int("event_id", eventID),
				zap.Error(err))
			return common.Error(c, 500, "Invalid manifest", common.Fields{"event_id": eventID})
		}
	}

	sourceExt := strings.TrimPrefix(filepath.Ext(item.Filename), ".")

	if spec.IsNoop() {
		return h.serveOriginal(c, sourcePath, sourceExt)
	}

	ext := spec.Format
	if ext == "" {
		ext = sourceExt
	}
	key := cache.Key(fmt.Sprintf("%d-%s", eventID, item.Filename), spec.Width, spec.Height, spec.Format, spec.Quality) + "." + ext

	if entry, err := h.store.Get(key); err == nil {
		return common.ServeMedia(c, fetch.MIMEType(ext), cacheControl, "HIT", entry.Data)
	}

	src, err := fetch.ReadLocal(sourcePath)
	if err != nil {
		return common.NotFound(c, "Media file not found", common.Fields{"event_id": eventID, "filename": item.Filename})
	}

	out, err := transform.Transform(src.Data, spec)
	if err != nil {
		// Soft failure: the original is always servable.
		logging.Logger.Warn("Transform failed, serving original",
			zap.Int("event_id", eventID),
			zap.Error(err))
		return common.ServeMedia(c, src.ContentType, cacheControl, "MISS", src.Data)
	}

	if err := h.store.Put(key, out, nil); err != nil {
		logging.LogCacheFailure("put", key, err)
	}

	return common.ServeMedia(c, fetch.MIMEType(ext), cacheControl, "MISS", out)
}

func (h *Handler) serveOriginal(c echo.Context, path, ext string) error {
	src, err := fetch.ReadLocal(path)
	if err != nil {
		return common.NotFound(c, "Media file not found", nil)
	}
	return common.ServeMedia(c, fetch.MIMEType(ext), cacheControl, "MISS", src.Data)
}
