package imageproxy_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arkturian/share-proxy/internal/api/imageproxy"
	"github.com/arkturian/share-proxy/pkg/cache"
	"github.com/arkturian/share-proxy/pkg/fetch"
)

type testValidator struct {
	validator *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func sampleJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

var _ = Describe("GetImage", func() {
	var (
		e       *echo.Echo
		origin  *httptest.Server
		store   *cache.MemoryStore
		handler *imageproxy.Handler
		fetches int
	)

	BeforeEach(func() {
		e = echo.New()
		e.Validator = &testValidator{validator: validator.New()}

		fetches = 0
		origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches++
			switch r.URL.Path {
			case "/img.jpg":
				w.Header().Set("Content-Type", "image/jpeg")
				w.Write(sampleJPEG(1600, 800))
			case "/corrupt.jpg":
				w.Header().Set("Content-Type", "image/jpeg")
				w.Write([]byte("broken image payload"))
			case "/gone.jpg":
				w.WriteHeader(http.StatusGone)
			case "/error.jpg":
				w.WriteHeader(http.StatusServiceUnavailable)
			default:
				http.NotFound(w, r)
			}
		}))

		store = cache.NewMemoryStore(time.Hour)
		handler = imageproxy.NewHandler(store, fetch.NewHTTPFetcher(5*time.Second))
	})

	AfterEach(func() {
		origin.Close()
	})

	request := func(query url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/imageproxy?"+query.Encode(), nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		Expect(handler.GetImage(c)).To(Succeed())
		return rec
	}

	errorOf := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	Context("parameter validation", func() {
		It("rejects a missing url", func() {
			rec := request(url.Values{})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(rec)["error"]).To(Equal("Missing url parameter"))
		})

		It("rejects a non-http url", func() {
			rec := request(url.Values{"url": {"ftp://example.com/file"}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(rec)["error"]).To(Equal("Invalid URL"))
		})

		It("rejects an unsupported format", func() {
			rec := request(url.Values{"url": {origin.URL + "/img.jpg"}, "format": {"tiff"}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(rec)["error"]).To(ContainSubstring("Invalid format"))
		})
	})

	Context("transforming", func() {
		It("resizes to webp on miss and serves the derivative from cache on hit", func() {
			query := url.Values{
				"url":     {origin.URL + "/img.jpg"},
				"width":   {"800"},
				"format":  {"webp"},
				"quality": {"85"},
			}

			rec := request(query)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("X-Cache")).To(Equal("MISS"))
			Expect(rec.Header().Get(echo.HeaderContentType)).To(Equal("image/webp"))
			Expect(rec.Header().Get(echo.HeaderCacheControl)).To(ContainSubstring("immutable"))

			cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
			Expect(err).ToNot(HaveOccurred())
			Expect(format).To(Equal("webp"))
			Expect(cfg.Width).To(Equal(800))
			Expect(cfg.Height).To(Equal(400))

			rec = request(query)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("X-Cache")).To(Equal("HIT"))
			Expect(fetches).To(Equal(1), "hit must not refetch the origin")
		})

		It("serves the fetched bytes unchanged when decoding fails", func() {
			rec := request(url.Values{"url": {origin.URL + "/corrupt.jpg"}, "width": {"100"}})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("broken image payload"))
			Expect(rec.Header().Get("X-Cache")).To(BeEmpty())
		})
	})

	Context("passthrough", func() {
		It("caches and serves the original when no transform is requested", func() {
			query := url.Values{"url": {origin.URL + "/img.jpg"}}

			rec := request(query)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("X-Cache")).To(Equal("MISS"))
			Expect(rec.Header().Get(echo.HeaderContentType)).To(Equal("image/jpeg"))
			Expect(rec.Header().Get(echo.HeaderCacheControl)).To(Equal("public, max-age=86400"))

			rec = request(query)
			Expect(rec.Header().Get("X-Cache")).To(Equal("HIT"))
			Expect(fetches).To(Equal(1))
		})
	})

	Context("upstream failures", func() {
		It("answers 404 for a gone origin resource", func() {
			rec := request(url.Values{"url": {origin.URL + "/gone.jpg"}})
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(errorOf(rec)["error"]).To(Equal("Failed to fetch image"))
		})

		It("propagates other origin statuses", func() {
			rec := request(url.Values{"url": {origin.URL + "/error.jpg"}})
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(errorOf(rec)["http_code"]).To(Equal(float64(http.StatusServiceUnavailable)))
		})

		It("answers 502 for an unreachable origin", func() {
			rec := request(url.Values{"url": {"http://127.0.0.1:1/img.jpg"}})
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})
})
