package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestReadinessGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name  string
		ready bool
		path  string
		want  int
	}{
		{"healthz before ready", false, "/healthz", http.StatusServiceUnavailable},
		{"query before ready", false, "/query", http.StatusServiceUnavailable},
		{"export before ready", false, "/audits/pending/export", http.StatusServiceUnavailable},
		{"healthz when ready", true, "/healthz", http.StatusNoContent},
		{"query when ready", true, "/query", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready := tt.ready
			r := gin.New()
			r.Use(readinessGate(func() bool { return ready }))
			r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
			r.GET("/query", func(c *gin.Context) { c.Status(http.StatusTeapot) })
			r.GET("/audits/pending/export", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestReadinessGateFlipsOnceReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ready := false
	r := gin.New()
	r.Use(readinessGate(func() bool { return ready }))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, want := range []int{http.StatusServiceUnavailable, http.StatusNoContent} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if w.Code != want {
			t.Fatalf("GET /healthz = %d, want %d", w.Code, want)
		}
		ready = true
	}
}

func TestCacheWithoutRedis(t *testing.T) {
	cache := NewCache(nil, time.Hour)
	cache.Add(context.Background(), "hash", "query { liveStock(productCode: 1) { stock } }")
	if _, ok := cache.Get(context.Background(), "hash"); ok {
		t.Fatalf("Get() hit without a redis connection")
	}
}

func TestPendingExportRejectsMalformedDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/audits/pending/export", pendingReviewExportHandler(nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audits/pending/export?date=04/03/2026", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("export with malformed date = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
