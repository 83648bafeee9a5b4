// Package transform decodes an image, computes fit-within-bounds target
// dimensions, resamples and re-encodes to the requested format/quality.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
)

const (
	MaxDimension   = 4000
	DefaultQuality = 85
)

// ErrDecodeFailed marks corrupt data or an unsupported codec. Callers serve
// the original bytes instead of failing the request.
var ErrDecodeFailed = errors.New("image decode failed")

// Spec is the requested derivative. Width/Height of 0 mean "unconstrained
// in that axis"; an empty Format keeps the source codec.
type Spec struct {
	Width   int
	Height  int
	Format  string
	Quality int
}

// IsNoop reports whether the spec requests no change at all, in which case
// the original bytes are served unchanged.
func (s Spec) IsNoop() bool {
	return s.Width <= 0 && s.Height <= 0 && s.Format == ""
}

// TargetDims computes the output dimensions for a source of (sw, sh) under
// a request of (w, h). Aspect ratio is always preserved; when both bounds
// are given the result fits within them.
func TargetDims(sw, sh, w, h int) (int, int) {
	switch {
	case w > 0 && h > 0:
		ratio := min(float64(w)/float64(sw), float64(h)/float64(sh))
		return int(float64(sw) * ratio), int(float64(sh) * ratio)
	case w > 0:
		ratio := float64(w) / float64(sw)
		return w, int(float64(sh) * ratio)
	case h > 0:
		ratio := float64(h) / float64(sh)
		return int(float64(sw) * ratio), h
	default:
		return sw, sh
	}
}

// PNGCompressionLevel maps the 1-100 quality scale onto the 0-9 PNG
// compression-level convention.
func PNGCompressionLevel(quality int) int {
	return (100 - quality) / 11
}

// Transform decodes data, resizes it per spec and re-encodes it. The
// returned bytes are a complete encoded image. Decode failures return
// ErrDecodeFailed; encode failures return an error the caller is expected
// to swallow in favor of the original bytes.
func Transform(data []byte, spec Spec) ([]byte, error) {
	if spec.IsNoop() {
		return data, nil
	}

	src, srcFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	bounds := src.Bounds()
	dstW, dstH := TargetDims(bounds.Dx(), bounds.Dy(), spec.Width, spec.Height)

	outFormat := normalizeFormat(spec.Format)
	if outFormat == "" {
		outFormat = normalizeFormat(srcFormat)
	}

	// An NRGBA canvas zero-fills to fully transparent, so alpha survives the
	// resize when the output format (or the source) carries it.
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	op := xdraw.Src
	if outFormat == "png" || outFormat == "webp" || srcFormat == "png" {
		op = xdraw.Over
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, op, nil)

	var buf bytes.Buffer
	switch outFormat {
	case "png":
		enc := png.Encoder{CompressionLevel: goPNGLevel(PNGCompressionLevel(spec.Quality))}
		err = enc.Encode(&buf, dst)
	case "webp":
		err = webp.Encode(&buf, dst, &webp.Options{Quality: float32(spec.Quality)})
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: spec.Quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", outFormat, err)
	}

	return buf.Bytes(), nil
}

// normalizeFormat collapses codec aliases onto the encoder switch. Source
// formats without an encoder (gif) fall through to jpeg.
func normalizeFormat(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "webp":
		return format
	case "":
		return ""
	default:
		return "jpeg"
	}
}

// goPNGLevel maps the 0-9 compression-level convention onto the encoder's
// discrete levels.
func goPNGLevel(level int) png.CompressionLevel {
	switch {
	case level <= 2:
		return png.BestCompression
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}
