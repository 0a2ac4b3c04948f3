package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

const testSecret = "test-secret-with-enough-entropy"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	assert.Equal(t, 128, config.MaxIdentifierLength)
	assert.Contains(t, config.AllowedOrigins, "http://localhost:3000")
	assert.Equal(t, 5*time.Minute, config.RequestTimeout)
	assert.Empty(t, config.JWTSecret)
}

func TestValidateIdentifier(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"uuid", "7f1c9a52-3b1e-4d8e-9a43-0c6f1f7b2a11", true},
		{"object id", "65f1c2a9e4b0a1b2c3d4e5f6", true},
		{"namespaced", "course:se101.group_3", true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 129), false},
		{"null byte", "g\x001", false},
		{"invalid utf8", "g\xff", false},
		{"path traversal", "../etc", false},
		{"spaces", "group 1", false},
		{"sql", "1;DROP TABLE", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sm.ValidateIdentifier("id", tt.id)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
		})
	}
}

func TestValidateParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := gin.New()
	router.Use(apperrors.ErrorHandler())
	router.GET("/groups/:id", sm.ValidateParam("id"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups/g-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups/g%201", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateToken(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{JWTSecret: testSecret})

	expired := validClaims("u-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := jwt.RegisteredClaims{Subject: "u-1"}

	tests := []struct {
		name    string
		token   string
		subject string
		wantErr bool
	}{
		{"valid", signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("u-1")), "u-1", false},
		{"wrong secret", signToken(t, "other-secret", jwt.SigningMethodHS256, validClaims("u-1")), "", true},
		{"wrong algorithm", signToken(t, testSecret, jwt.SigningMethodHS512, validClaims("u-1")), "", true},
		{"expired", signToken(t, testSecret, jwt.SigningMethodHS256, expired), "", true},
		{"no expiry", signToken(t, testSecret, jwt.SigningMethodHS256, noExpiry), "", true},
		{"no subject", signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("")), "", true},
		{"garbage", "not.a.jwt", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := sm.ValidateToken(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subject, subject)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(secret string) *gin.Engine {
		sm := NewSecurityMiddleware(SecurityConfig{JWTSecret: secret})
		router := gin.New()
		router.Use(apperrors.ErrorHandler(), sm.Authenticate())
		router.GET("/me", func(c *gin.Context) {
			c.String(http.StatusOK, c.GetString(SubjectKey))
		})
		return router
	}

	tests := []struct {
		name   string
		secret string
		header string
		code   int
		body   string
	}{
		{"auth disabled", "", "", http.StatusOK, ""},
		{"missing header", testSecret, "", http.StatusUnauthorized, ""},
		{"wrong scheme", testSecret, "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", testSecret, "Bearer nope", http.StatusUnauthorized, ""},
		{"valid token", testSecret, "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("instructor-7")), http.StatusOK, "instructor-7"},
		{"lowercase scheme", testSecret, "bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, validClaims("ta-2")), http.StatusOK, "ta-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(tt.secret).ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := NewSecurityMiddleware(SecurityConfig{EnableHSTS: true})
	router := gin.New()
	router.Use(sm.SecurityHeadersMiddleware())
	router.GET("/api/v1/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/swagger/*any", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
}

func TestValidateContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := gin.New()
	router.Use(sm.ValidateContentType)
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		code        int
	}{
		{"json", http.MethodPost, "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"xml", http.MethodPost, "application/xml", `<x/>`, http.StatusUnsupportedMediaType},
		{"empty post", http.MethodPost, "text/plain", "", http.StatusOK},
		{"get ignores type", http.MethodGet, "text/plain", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := NewSecurityMiddleware(SecurityConfig{RequestTimeout: 50 * time.Millisecond})
	router := gin.New()
	router.Use(sm.RequestTimeout)
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		c.Status(http.StatusGatewayTimeout)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-Timeout"))
}

func TestCORSConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := gin.New()
	router.Use(sm.CORSConfig())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
