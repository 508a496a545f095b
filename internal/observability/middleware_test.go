package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func setupTestTracer() func() {
	// Set up a no-op tracer provider for testing
	tp := noop.NewTracerProvider()
	otel.SetTracerProvider(tp)

	// Return cleanup function
	return func() {
		otel.SetTracerProvider(nil)
	}
}

func TestGinMiddleware_BasicFunctionality(t *testing.T) {
	cleanup := setupTestTracer()
	defer cleanup()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware("test-service"))

	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "middleware working",
		})
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "middleware working", resp["message"])
}

func TestGinMiddleware_TraceHeadersPropagation(t *testing.T) {
	cleanup := setupTestTracer()
	defer cleanup()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware("test-service"))

	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"has_traceparent": c.Request.Header.Get("traceparent") != "",
		})
	})

	// Request without trace headers
	req1, _ := http.NewRequest("GET", "/test", nil)
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)

	assert.Equal(t, http.StatusOK, w1.Code)

	var resp1 map[string]interface{}
	err := json.Unmarshal(w1.Body.Bytes(), &resp1)
	require.NoError(t, err)
	assert.Equal(t, false, resp1["has_traceparent"])

	// Request with trace headers
	req2, _ := http.NewRequest("GET", "/test", nil)
	req2.Header.Set("traceparent", "00-12345678901234567890123456789012-1234567890123456-01")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	assert.Equal(t, http.StatusOK, w2.Code)

	var resp2 map[string]interface{}
	err = json.Unmarshal(w2.Body.Bytes(), &resp2)
	require.NoError(t, err)
	assert.Equal(t, true, resp2["has_traceparent"])
}

func TestGinMiddlewareWithErrorHandling_StatusCodes(t *testing.T) {
	cleanup := setupTestTracer()
	defer cleanup()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddlewareWithErrorHandling("test-service"))

	router.GET("/success", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/client-error", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
	})

	router.GET("/server-error", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	})

	router.GET("/not-found", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	req, _ := http.NewRequest("GET", "/success", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest("GET", "/client-error", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req, _ = http.NewRequest("GET", "/not-found", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req, _ = http.NewRequest("GET", "/server-error", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDetermineErrorSeverity(t *testing.T) {
	assert.Equal(t, "error", determineErrorSeverity(500, nil))
	assert.Equal(t, "warn", determineErrorSeverity(404, nil))
	assert.Equal(t, "info", determineErrorSeverity(200, nil))
}
