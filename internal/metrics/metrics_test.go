package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestInitializeExportsLabels(t *testing.T) {
	Initialize()
	out := scrape(t)
	for _, want := range []string{
		`mediatag_record_reads_total{status="error"}`,
		`mediatag_record_writes_total{operation="tags",status="success"}`,
		`mediatag_scan_files_total{outcome="failed"}`,
		"mediatag_tag_index_size",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %s", want)
		}
	}
}

func TestStatus(t *testing.T) {
	if Status(nil) != StatusSuccess || Status(errors.New("x")) != StatusError {
		t.Error("Status labels")
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/records/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/records/a/b.jpg", nil))

	out := scrape(t)
	if !strings.Contains(out, `mediatag_http_requests_total{method="GET",route="/records/*",status="418"}`) {
		t.Errorf("route label not recorded:\n%s", out)
	}
}
