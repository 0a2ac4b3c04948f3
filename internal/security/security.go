package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxIdentifierLength int           `json:"max_identifier_length" mapstructure:"max-identifier-length"`
	MaxBodyBytes        int64         `json:"max_body_bytes" mapstructure:"max-body-bytes"`
	AllowedOrigins      []string      `json:"allowed_origins" mapstructure:"allowed-origins"`
	RequestTimeout      time.Duration `json:"request_timeout" mapstructure:"request-timeout"`
	// JWTSecret enables bearer-token validation on the API when set
	JWTSecret  string `json:"-" mapstructure:"jwt-secret"`
	EnableHSTS bool   `json:"enable_hsts" mapstructure:"enable-hsts"`
}

// DefaultSecurityConfig returns secure defaults. Runs call the hosting API
// for every commit, so the request timeout is generous.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxIdentifierLength: 128,
		MaxBodyBytes:        1 << 20,
		AllowedOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
		RequestTimeout:      5 * time.Minute,
	}
}

// SecurityMiddleware bundles the request-hardening middleware
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.MaxIdentifierLength <= 0 {
		config.MaxIdentifierLength = 128
	}
	return &SecurityMiddleware{config: config}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// ValidateIdentifier checks a group, member or project ID taken from a request
func (sm *SecurityMiddleware) ValidateIdentifier(field, id string) error {
	switch {
	case id == "":
		return apperrors.NewValidationError(field+" is required", field)
	case len(id) > sm.config.MaxIdentifierLength:
		return apperrors.NewValidationError(
			fmt.Sprintf("%s exceeds maximum length of %d characters", field, sm.config.MaxIdentifierLength), field)
	case !utf8.ValidString(id) || strings.ContainsRune(id, 0):
		return apperrors.NewValidationError(field+" contains invalid characters", field)
	case !identifierPattern.MatchString(id):
		return apperrors.NewValidationError(field+" may only contain letters, digits, '.', '_', ':' and '-'", field)
	}
	return nil
}

// ValidateParam rejects requests whose path parameter is not a valid identifier
func (sm *SecurityMiddleware) ValidateParam(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sm.ValidateIdentifier(param, c.Param(param)); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ValidateContentType requires JSON bodies on write requests
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if c.Request.ContentLength != 0 && contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error":   "validation",
			"message": "unsupported content type, expected application/json",
		})
		return
	}

	c.Next()
}

// LimitBody caps request bodies at MaxBodyBytes
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout bounds the request context, which bounds any run it starts
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	if sm.config.RequestTimeout <= 0 {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORSConfig builds the CORS middleware. An empty origin list allows any
// origin without credentials.
func (sm *SecurityMiddleware) CORSConfig() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	if len(sm.config.AllowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = sm.config.AllowedOrigins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}
