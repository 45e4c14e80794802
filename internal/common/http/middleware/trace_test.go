package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"veloj/internal/common/http/middleware"
	"veloj/pkg/utils/contextkey"
)

func newTraceRouter(capture *map[string]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceContext())
	router.GET("/ping", func(c *gin.Context) {
		ctx := c.Request.Context()
		*capture = map[string]string{
			"trace":   ctx.Value(contextkey.TraceID).(string),
			"request": ctx.Value(contextkey.RequestID).(string),
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestTraceContextMintsIDs(t *testing.T) {
	var seen map[string]string
	router := newTraceRouter(&seen)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if seen["trace"] == "" || seen["request"] == "" {
		t.Fatalf("context ids = %v, want minted values", seen)
	}
	if rec.Header().Get("X-Trace-Id") != seen["trace"] {
		t.Fatal("trace id header must match the context value")
	}
	if rec.Header().Get("X-Request-Id") != seen["request"] {
		t.Fatal("request id header must match the context value")
	}
}

func TestTraceContextPropagatesInboundIDs(t *testing.T) {
	var seen map[string]string
	router := newTraceRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	req.Header.Set("X-Request-Id", "req-456")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if seen["trace"] != "trace-123" || seen["request"] != "req-456" {
		t.Fatalf("context ids = %v, want the inbound headers", seen)
	}
}
