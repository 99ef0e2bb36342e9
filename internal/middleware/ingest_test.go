package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIngestTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/heartbeats/worker", IngestTokenMiddleware("hb-secret"), func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	req, _ := http.NewRequest("POST", "/heartbeats/worker", nil)
	req.Header.Set("X-Heartbeat-Token", "hb-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("valid token status = %d", w.Code)
	}

	req, _ = http.NewRequest("POST", "/heartbeats/worker", nil)
	req.Header.Set("X-Heartbeat-Token", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}

	req, _ = http.NewRequest("POST", "/heartbeats/worker", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}
}

func TestIngestTokenMiddlewareOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/heartbeats/worker", IngestTokenMiddleware(""), func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	req, _ := http.NewRequest("POST", "/heartbeats/worker", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("open ingest status = %d", w.Code)
	}
}
