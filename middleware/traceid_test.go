package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceRouter() *gin.Engine {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin": GetTraceID(c),
			"ctx": TraceIDFrom(c.Request.Context()),
		})
	})
	return r
}

func traceOf(t *testing.T, r *gin.Engine, header string) (body, echoed string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	if header != "" {
		req.Header.Set(TraceIDHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String(), w.Header().Get(TraceIDHeader)
}

func TestTraceID_GeneratesUUID(t *testing.T) {
	body, echoed := traceOf(t, traceRouter(), "")
	_, err := uuid.Parse(echoed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gin":"`+echoed+`","ctx":"`+echoed+`"}`, body)
}

func TestTraceID_KeepsWellFormedHeader(t *testing.T) {
	_, echoed := traceOf(t, traceRouter(), "booking-sync.42")
	assert.Equal(t, "booking-sync.42", echoed)
}

func TestTraceID_ReplacesMalformedHeader(t *testing.T) {
	r := traceRouter()
	for _, bad := range []string{"has space", "quote\"d", strings.Repeat("a", 65)} {
		_, echoed := traceOf(t, r, bad)
		assert.NotEqual(t, bad, echoed)
		_, err := uuid.Parse(echoed)
		assert.NoError(t, err, bad)
	}
}

func TestTraceID_Helpers(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetTraceID(c))
	assert.Empty(t, TraceIDFrom(context.Background()))
	assert.Equal(t, "t-1", TraceIDFrom(WithTraceID(context.Background(), "t-1")))
}
