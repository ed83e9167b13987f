package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, rpm, burst int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(Config{RequestsPerMinute: rpm, BurstSize: burst, CleanupInterval: time.Hour})
	l.now = clock.Now
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLimiterAllow(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 5)

	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("ip"); !ok {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	ok, wait := l.Allow("ip")
	if ok {
		t.Fatal("Request after burst should be denied")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want (0, 1s]", wait)
	}

	clock.Advance(time.Second)
	if ok, _ := l.Allow("ip"); !ok {
		t.Error("Request after refill should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 2)

	l.Allow("a")
	l.Allow("a")
	if ok, _ := l.Allow("a"); ok {
		t.Error("client a should be limited")
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Error("client b should not be affected by client a")
	}
}

func TestLimiterBurstCap(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 3)

	l.Allow("ip")
	clock.Advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if ok, _ := l.Allow("ip"); ok {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d after idle, want burst of 3", allowed)
	}
}

func TestLimiterEvictIdle(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 5)

	l.Allow("idle")
	clock.Advance(10 * time.Second)
	l.Allow("active")
	l.evictIdle()

	l.mu.Lock()
	_, idle := l.clients["idle"]
	_, active := l.clients["active"]
	l.mu.Unlock()
	if idle || !active {
		t.Errorf("idle kept = %v, active kept = %v", idle, active)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, 60, 1)

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/v1/risk", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/risk", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/risk", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
}
