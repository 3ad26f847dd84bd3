package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowExhaustsPerKey(t *testing.T) {
	limiter := NewTokenBucket(3, 60)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d should pass", i+1)
	}
	assert.False(t, limiter.Allow("10.0.0.1"))

	// Other clients keep their own budget.
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestZeroCapacityFallsBackToRate(t *testing.T) {
	limiter := NewTokenBucket(0, 2)
	assert.True(t, limiter.Allow("k"))
	assert.True(t, limiter.Allow("k"))
	assert.False(t, limiter.Allow("k"))
}

func TestGinMiddlewareAnswers429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewTokenBucket(1, 60).GinMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
