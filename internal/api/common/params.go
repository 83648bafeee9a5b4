package common

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arkturian/share-proxy/pkg/transform"
)

// TransformQuery holds the shared transform query parameters. Width, height
// and quality are clamped rather than rejected; only an unknown format is an
// error.
type TransformQuery struct {
	Width   int    `query:"width"`
	Height  int    `query:"height"`
	Format  string `query:"format" validate:"omitempty,oneof=jpg jpeg png webp"`
	Quality int    `query:"quality"`
}

// BindTransformSpec binds and validates the transform parameters of a
// request. Returns an error only for a malformed binding or an unsupported
// format value.
func BindTransformSpec(c echo.Context) (transform.Spec, error) {
	q := TransformQuery{Quality: transform.DefaultQuality}
	if err := c.Bind(&q); err != nil {
		return transform.Spec{}, err
	}
	q.Format = strings.ToLower(q.Format)
	if err := c.Validate(&q); err != nil {
		return transform.Spec{}, err
	}

	return transform.Spec{
		Width:   clamp(q.Width, 0, transform.MaxDimension),
		Height:  clamp(q.Height, 0, transform.MaxDimension),
		Format:  q.Format,
		Quality: clamp(q.Quality, 1, 100),
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
