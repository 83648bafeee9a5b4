package objects_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arkturian/share-proxy/internal/api/objects"
	"github.com/arkturian/share-proxy/pkg/cache"
	"github.com/arkturian/share-proxy/pkg/fetch"
)

const apiKey = "test-api-key"

var _ = Describe("GetObject", func() {
	var (
		e           *echo.Echo
		upstream    *httptest.Server
		fileOrigin  *httptest.Server
		store       *cache.MemoryStore
		handler     *objects.Handler
		fileFetches int
		seenAPIKeys []string
	)

	BeforeEach(func() {
		e = echo.New()

		fileFetches = 0
		fileOrigin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fileFetches++
			switch r.URL.Path {
			case "/files/report.pdf":
				w.Header().Set("Content-Type", "application/pdf")
				w.Write([]byte("pdf payload"))
			case "/files/broken.bin":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				http.NotFound(w, r)
			}
		}))

		seenAPIKeys = nil
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenAPIKeys = append(seenAPIKeys, r.Header.Get("X-API-Key"))
			respond := func(meta map[string]interface{}) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(meta)
			}
			switch r.URL.Path {
			case "/storage/objects/1/public":
				respond(map[string]interface{}{
					"is_public":    true,
					"external_uri": fileOrigin.URL + "/files/report.pdf",
					"mime_type":    "application/pdf",
				})
			case "/storage/objects/2/public":
				respond(map[string]interface{}{"is_public": false})
			case "/storage/objects/3/public":
				respond(map[string]interface{}{"is_public": true, "external_uri": ""})
			case "/storage/objects/4/public":
				respond(map[string]interface{}{
					"is_public":    true,
					"external_uri": fileOrigin.URL + "/files/broken.bin",
				})
			case "/storage/objects/5/public":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				http.NotFound(w, r)
			}
		}))

		store = cache.NewMemoryStore(time.Hour)
		handler = objects.NewHandler(store, fetch.NewHTTPFetcher(5*time.Second), apiKey, 1<<20,
			func(host string) string { return upstream.URL })
	})

	AfterEach(func() {
		upstream.Close()
		fileOrigin.Close()
	})

	request := func(query url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/objects?"+query.Encode(), nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		Expect(handler.GetObject(c)).To(Succeed())
		return rec
	}

	errorOf := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	It("rejects a missing or non-numeric id", func() {
		rec := request(url.Values{})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(errorOf(rec)["error"]).To(ContainSubstring("Missing object ID"))

		rec = request(url.Values{"id": {"abc"}})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("serves a public object and caches it with its metadata", func() {
		rec := request(url.Values{"id": {"1"}})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("X-Cache")).To(Equal("MISS"))
		Expect(rec.Header().Get("X-External-URI")).To(Equal(fileOrigin.URL + "/files/report.pdf"))
		Expect(rec.Header().Get(echo.HeaderContentType)).To(Equal("application/pdf"))
		Expect(rec.Body.String()).To(Equal("pdf payload"))
		Expect(seenAPIKeys).To(ConsistOf(apiKey))

		rec = request(url.Values{"id": {"1"}})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("X-Cache")).To(Equal("HIT"))
		Expect(rec.Header().Get("X-External-URI")).To(Equal(fileOrigin.URL + "/files/report.pdf"))
		Expect(rec.Header().Get(echo.HeaderContentType)).To(Equal("application/pdf"))
		Expect(fileFetches).To(Equal(1), "hit must not touch the origin")
		Expect(seenAPIKeys).To(HaveLen(1), "hit must not touch the metadata API")
	})

	It("refetches when no_cache is set", func() {
		request(url.Values{"id": {"1"}})
		rec := request(url.Values{"id": {"1"}, "no_cache": {"1"}})

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("X-Cache")).To(Equal("MISS"))
		Expect(fileFetches).To(Equal(2))
	})

	It("denies access to a non-public object", func() {
		rec := request(url.Values{"id": {"2"}})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		body := errorOf(rec)
		Expect(body["error"]).To(Equal("Access denied. This object is not public."))
		Expect(body["object_id"]).To(Equal(float64(2)))
	})

	It("rejects an object without an external URI", func() {
		rec := request(url.Values{"id": {"3"}})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(errorOf(rec)["error"]).To(Equal("This object does not have an external URI"))
	})

	It("answers 404 for an unknown object", func() {
		rec := request(url.Values{"id": {"99"}})
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(errorOf(rec)["error"]).To(Equal("Failed to fetch object metadata"))
	})

	It("propagates a metadata API failure", func() {
		rec := request(url.Values{"id": {"5"}})
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	It("propagates an external file failure", func() {
		rec := request(url.Values{"id": {"4"}})
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		body := errorOf(rec)
		Expect(body["error"]).To(Equal("Failed to fetch external file"))
		Expect(body["http_code"]).To(Equal(float64(http.StatusInternalServerError)))
	})

	It("passes the request host to the upstream base resolver", func() {
		var gotHost string
		handler = objects.NewHandler(store, fetch.NewHTTPFetcher(5*time.Second), apiKey, 1<<20,
			func(host string) string {
				gotHost = host
				return upstream.URL
			})

		req := httptest.NewRequest(http.MethodGet, "/objects?id=1", nil)
		req.Host = "share.example.com"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		Expect(handler.GetObject(c)).To(Succeed())

		Expect(gotHost).To(Equal("share.example.com"))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})
