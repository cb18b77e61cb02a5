package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"glacierguard-api/config"
	"glacierguard-api/logger"
	"glacierguard-api/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCORSRouter(origins string) *gin.Engine {
	r := gin.New()
	r.Use(SetupCORS(config.CORSConfig{AllowedOrigins: origins})...)
	r.GET("/api/detections", func(c *gin.Context) { c.JSON(http.StatusOK, []int{}) })
	return r
}

func preflight(r http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/detections", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", "PUT")
	req.Header.Set("Access-Control-Request-Headers", "X-Custom-Header, Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSConfiguredOrigin(t *testing.T) {
	r := newCORSRouter("http://localhost:5173")

	w := preflight(r, "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET,POST,PUT,DELETE,OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "X-Custom-Header, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))

	req := httptest.NewRequest(http.MethodGet, "/api/detections", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsOtherOrigin(t *testing.T) {
	r := newCORSRouter("http://localhost:5173, https://glacier.example")

	assert.Equal(t, http.StatusNoContent, preflight(r, "https://glacier.example").Code)
	assert.Equal(t, http.StatusForbidden, preflight(r, "https://evil.example").Code)
}

func TestCORSWildcard(t *testing.T) {
	w := preflight(newCORSRouter("*"), "https://anywhere.example")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSNoOrigins(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, preflight(newCORSRouter(" , "), "http://localhost:5173").Code)
}

func TestRequireAuth(t *testing.T) {
	auth := services.NewAuthService(config.JWTConfig{Secret: "s3cret", ExpiryHours: 1})
	token, err := auth.GenerateToken(7, "ops@glacier.guard", "admin")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/write", RequireAuth(auth), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(*services.Claims)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/write", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestOptionalAuthDisabled(t *testing.T) {
	r := gin.New()
	r.POST("/write", OptionalAuth(false, nil), func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/write", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRequestIDAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Options{Level: "info", Format: "json", Writer: &buf})
	t.Cleanup(func() { logger.Init(logger.Options{Level: "disabled"}) })

	r := gin.New()
	r.Use(RequestID(), AccessLog(time.Second))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "request done", line["message"])
	assert.Equal(t, "abc-123", line["request_id"])
	assert.EqualValues(t, 200, line["status"])
	assert.Equal(t, "/ping", line["path"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "a fresh request id is generated")
}

func TestRecover(t *testing.T) {
	logger.Init(logger.Options{Level: "disabled"})

	r := gin.New()
	r.Use(Recover())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/detections/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/detections/:id", "404"))
	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/detections/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/detections/:id", "404"))

	assert.Equal(t, 3.0, after-before)
}
