package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

// SubjectKey is the gin context key holding the authenticated token subject
const SubjectKey = "auth_subject"

var errMissingSubject = errors.New("token has no subject")

// ValidateToken verifies an HS256 bearer token and returns its subject.
// Tokens are issued elsewhere; this service only checks them.
func (sm *SecurityMiddleware) ValidateToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(sm.config.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errMissingSubject
	}

	return claims.Subject, nil
}

// Authenticate requires a valid bearer token when a JWT secret is configured
func (sm *SecurityMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sm.config.JWTSecret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		scheme, tokenString, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
			_ = c.Error(apperrors.NewUnauthorizedError("missing bearer token", nil))
			c.Abort()
			return
		}

		subject, err := sm.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			_ = c.Error(apperrors.NewUnauthorizedError("invalid bearer token", err))
			c.Abort()
			return
		}

		c.Set(SubjectKey, subject)
		c.Next()
	}
}
