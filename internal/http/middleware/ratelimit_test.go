package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(rps, burst, KeyByIP())
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	r := limitedRouter(1, 3)
	for i := 0; i < 3; i++ {
		if code := hit(r, "203.0.113.7:1234"); code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, code)
		}
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	r := limitedRouter(0.001, 1)
	if code := hit(r, "203.0.113.7:1234"); code != http.StatusOK {
		t.Fatalf("first = %d, want 200", code)
	}
	if code := hit(r, "203.0.113.7:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", code)
	}
}

func TestRateLimiterBucketsPerIP(t *testing.T) {
	r := limitedRouter(0.001, 1)
	if code := hit(r, "203.0.113.7:1234"); code != http.StatusOK {
		t.Fatalf("first ip = %d", code)
	}
	// A different client gets its own bucket.
	if code := hit(r, "198.51.100.9:1234"); code != http.StatusOK {
		t.Fatalf("second ip = %d, want 200", code)
	}
}

func TestKeyByIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	c.Request.RemoteAddr = "203.0.113.7:9999"
	if got := KeyByIP()(c); got != "ip:203.0.113.7" {
		t.Fatalf("key = %q", got)
	}
}
