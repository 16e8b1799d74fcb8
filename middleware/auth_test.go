package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSec = config.SecurityConfig{JWTSecret: testSecret}

func newProtectedRouter(c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSec, c))
	r.GET("/me", func(ctx *gin.Context) {
		org, user := GetIdentity(ctx)
		ctx.JSON(http.StatusOK, gin.H{"org": org, "user": user})
	})
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Code
}

func TestAuth_Rejections(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	r := newProtectedRouter(c)

	cases := map[string]struct {
		header string
		code   string
	}{
		"missing":   {"", "missing_token"},
		"no bearer": {"Token abc123", "missing_token"},
		"garbage":   {"Bearer notavalidtoken", "invalid_token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
}

func TestAuth_SetsIdentity(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	r := newProtectedRouter(c)
	tok, err := GenerateToken("studio-1", "alice", testSecret, "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"org":"studio-1","user":"alice"}`, w.Body.String())

	// query token for streams
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_RevokedToken(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	r := newProtectedRouter(c)
	tok, _ := GenerateToken("studio-1", "alice", testSecret, "", time.Hour)
	claims, err := ParseToken(tok, testSecret, "")
	require.NoError(t, err)
	require.NoError(t, RevokeToken(context.Background(), c, claims))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_expired", errorCode(t, w))
}

func TestGetIdentity_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	org, user := GetIdentity(c)
	assert.Empty(t, org)
	assert.Empty(t, user)
}

func TestAdminAuth(t *testing.T) {
	newRouter := func(key string) *gin.Engine {
		r := gin.New()
		r.Use(AdminAuth(key))
		r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	call := func(r *gin.Engine, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if key != "" {
			req.Header.Set(AdminKeyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	r := newRouter("s3cret")
	assert.Equal(t, http.StatusOK, call(r, "s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)

	w := call(newRouter(""), "anything")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "admin_disabled", errorCode(t, w))
}

func TestServiceAuth(t *testing.T) {
	newRouter := func(key string) *gin.Engine {
		r := gin.New()
		r.POST("/xp", ServiceAuth(key), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	call := func(r *gin.Engine, header, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/xp", nil)
		req.Header.Set(header, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	r := newRouter("backend-key")
	assert.Equal(t, http.StatusOK, call(r, ServiceKeyHeader, "backend-key").Code)
	w := call(r, ServiceKeyHeader, "guess")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_service_key", errorCode(t, w))
	assert.Equal(t, http.StatusUnauthorized, call(r, AdminKeyHeader, "backend-key").Code,
		"the admin header does not stand in for the service key")

	w = call(newRouter(""), ServiceKeyHeader, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "service_disabled", errorCode(t, w))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "test panic")
}

func TestRecovery_NoPanic_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_PassesStatusThrough(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
