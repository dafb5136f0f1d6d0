package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	var fromCtx string

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		fromCtx = logger.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	minted := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, minted)
	assert.Equal(t, minted, fromCtx)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", fromCtx)
}

func TestJWTAuthMiddleware(t *testing.T) {
	const secret = "top-secret"

	sign := func(method jwt.SigningMethod, key interface{}, exp time.Time) string {
		tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	var subject interface{}
	r := gin.New()
	r.GET("/", JWTAuthMiddleware(secret, zaptest.NewLogger(t)), func(c *gin.Context) {
		subject, _ = c.Get(SubjectKey)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"none alg", "Bearer " + sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(time.Hour)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)
			}
		})
	}

	assert.Equal(t, "ops", subject)
}

func TestJWTAuthMiddleware_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/", JWTAuthMiddleware("", zaptest.NewLogger(t)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsMiddleware_Snapshot(t *testing.T) {
	m := NewMetricsMiddleware(zaptest.NewLogger(t))

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, path := range []string{"/b", "/a", "/b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	snap := m.Snapshot()
	assert.Equal(t, []string{"GET /a_418", "GET /b_200"}, snap.Keys)
	assert.Equal(t, int64(2), snap.RequestsTotal["GET /b_200"])
	assert.Equal(t, int64(1), snap.RequestsTotal["GET /a_418"])
	assert.Equal(t, int64(0), snap.ActiveRequests)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(zaptest.NewLogger(t), false))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"INTERNAL_ERROR"`)
}
