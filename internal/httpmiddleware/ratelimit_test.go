package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestAllowBurstThenRefill(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("burst within capacity rejected")
	}
	if l.allow("a") {
		t.Fatal("request beyond capacity allowed")
	}
	// Another client has its own bucket.
	if !l.allow("b") {
		t.Fatal("independent client rejected")
	}

	now = now.Add(2 * time.Second) // 60/min refills one token per second
	if !l.allow("a") {
		t.Fatal("refilled token rejected")
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	if !l.allow("a") {
		t.Fatal("first request rejected")
	}
	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if !l.allow("a") {
			t.Fatalf("request %d after long idle rejected", i+1)
		}
	}
	if l.allow("a") {
		t.Fatal("capacity cap not applied after refill")
	}
}

func TestPruneDropsIdleClients(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	l.allow("idle")
	now = now.Add(staleAfter + time.Minute)
	l.mu.Lock()
	l.prune(now)
	_, kept := l.state["idle"]
	l.mu.Unlock()
	if kept {
		t.Fatal("idle bucket survived prune")
	}
}

func TestGinMiddleware(t *testing.T) {
	t.Parallel()
	l := NewSimpleTokenBucket(1, 60)
	r := gin.New()
	r.GET("/", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
}
