package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedRouter(l *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(l))
	return r
}

func TestGinMiddlewareLogsRoutePattern(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newLoggedRouter(zap.New(core))
	r.GET("/courses/:id/progress", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses/course-1/progress", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "/courses/:id/progress", fields["route"])
	assert.Equal(t, "/courses/course-1/progress", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
}

func TestGinMiddlewareServerErrorsLogAtErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newLoggedRouter(zap.New(core))
	r.GET("/reports/:id", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/job-1", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Contains(t, entry.ContextMap(), "errors")
}
