package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndInflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/research/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	r.POST("/api/v1/research/:id/status", func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	const route = "/api/v1/research/:id"
	baseGet := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200"))
	baseConflict := testutil.ToFloat64(httpReqs.WithLabelValues("POST", route+"/status", "409"))
	baseMissing := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/reviews/unknown", "404"))
	baseSeries := testutil.CollectAndCount(httpLat, "http_request_duration_seconds")

	for _, id := range []string{"r-1", "r-2", "r-3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/research/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s -> %d", id, w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/research/r-1/status", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("POST status -> %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unmatched -> %d", w.Code)
	}

	// Research ids collapse into the registered route.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200")); got != baseGet+3 {
		t.Fatalf("route counter = %v; want %v", got, baseGet+3)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/research/r-1", "200")); got != 0 {
		t.Fatalf("raw research path leaked into labels: %v", got)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", route+"/status", "409")); got != baseConflict+1 {
		t.Fatalf("conflict counter = %v; want %v", got, baseConflict+1)
	}
	// Unmatched routes fall back to the raw path.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/reviews/unknown", "404")); got != baseMissing+1 {
		t.Fatalf("404 counter = %v; want %v", got, baseMissing+1)
	}

	// One latency series per (method, route): GET route, POST status, 404 path.
	if got := testutil.CollectAndCount(httpLat, "http_request_duration_seconds"); got > baseSeries+3 {
		t.Fatalf("latency series grew by %d; ids are leaking into labels", got-baseSeries)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
