package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func idemRouter(store IdempotencyStore, hits *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(IdempotencyMiddleware(store))
	router.POST("/v1/actions", func(c *gin.Context) {
		*hits++
		c.JSON(200, gin.H{"hit": *hits})
	})
	return router
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Minute)
	hits := 0
	router := idemRouter(store, &hits)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	router.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req2.Header.Set(HeaderIdempotencyKey, "key-1")
	router.ServeHTTP(second, req2)

	if hits != 1 {
		t.Fatalf("handler must run once, ran %d times", hits)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Minute)
	hits := 0
	router := idemRouter(store, &hits)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/actions", nil))
	}
	if hits != 3 {
		t.Fatalf("requests without the header must not be deduplicated, got %d hits", hits)
	}
}

func TestIdempotencyConcurrentDuplicateConflicts(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Minute)

	// Simulate an in-flight request by taking the lock directly.
	if _, hit := store.GetOrLock("1.2.3.4:key-2"); hit {
		t.Fatalf("fresh key must grant the lock")
	}

	rec, hit := store.GetOrLock("1.2.3.4:key-2")
	if !hit || !rec.Processing {
		t.Fatalf("second caller must observe the in-flight record")
	}
}

func TestIdempotencyServerErrorUnlocks(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Minute)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(IdempotencyMiddleware(store))
	hits := 0
	router.POST("/v1/actions", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
		req.Header.Set(HeaderIdempotencyKey, "key-3")
		router.ServeHTTP(rec, req)
	}
	if hits != 2 {
		t.Fatalf("5xx responses must stay retryable, handler ran %d times", hits)
	}
}

func TestInMemStoreTTLExpiry(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Millisecond)
	store.Save("k", 200, []byte("{}"))
	time.Sleep(5 * time.Millisecond)

	if _, hit := store.GetOrLock("k"); hit {
		t.Fatalf("expired record must not replay")
	}
}
