package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/shellbox/shellbox/internal/metrics"
)

// SandboxClaims are the JWT claims for sandbox-scoped access tokens. A
// token issued at sandbox creation authorizes operations on that sandbox
// only, so an agent can be handed its own sandbox without the server API
// key.
type SandboxClaims struct {
	jwt.RegisteredClaims
	SandboxID string `json:"sandbox_id"`
}

// JWTIssuer creates and validates sandbox-scoped JWTs.
type JWTIssuer struct {
	secret []byte
}

// NewJWTIssuer creates a JWT issuer with the given shared secret. An empty
// secret disables token issuance.
func NewJWTIssuer(secret string) *JWTIssuer {
	if secret == "" {
		return nil
	}
	return &JWTIssuer{secret: []byte(secret)}
}

// IssueSandboxToken creates a JWT scoped to one sandbox.
func (j *JWTIssuer) IssueSandboxToken(sandboxID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SandboxClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sandboxID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "shellbox",
		},
		SandboxID: sandboxID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateSandboxToken parses and validates a sandbox-scoped JWT.
func (j *JWTIssuer) ValidateSandboxToken(tokenStr string) (*SandboxClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SandboxClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*SandboxClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// SandboxTokenMiddleware authorizes per-sandbox routes. A request passes
// when it carries the server API key, or a bearer token whose sandbox
// claim matches the :id route parameter. With neither key nor issuer
// configured the middleware is a no-op.
func SandboxTokenMiddleware(apiKey string, issuer *JWTIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" && issuer == nil {
				return next(c)
			}

			authz := c.Request().Header.Get("Authorization")
			if bearer, ok := strings.CutPrefix(authz, "Bearer "); ok && issuer != nil {
				claims, err := issuer.ValidateSandboxToken(bearer)
				if err != nil {
					metrics.AuthAttemptsTotal.WithLabelValues("sandbox_token", "invalid").Inc()
					return c.JSON(http.StatusForbidden, map[string]string{
						"error": "invalid sandbox token",
					})
				}
				if claims.SandboxID != c.Param("id") {
					metrics.AuthAttemptsTotal.WithLabelValues("sandbox_token", "mismatch").Inc()
					return c.JSON(http.StatusForbidden, map[string]string{
						"error": "token not valid for this sandbox",
					})
				}
				metrics.AuthAttemptsTotal.WithLabelValues("sandbox_token", "ok").Inc()
				return next(c)
			}

			return APIKeyMiddleware(apiKey)(next)(c)
		}
	}
}
