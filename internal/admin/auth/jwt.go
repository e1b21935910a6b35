// Package auth issues and verifies the bearer tokens the admin REST surface
// requires on every endpoint but POST /api/v1/users/login.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wirelane/drawbridge/internal/xerrors"
)

// JWTAuth issues and verifies HS256 bearer tokens signed with a single
// symmetric secret (JWT_SECRET).
type JWTAuth struct {
	secret []byte
	ttl    time.Duration
}

// New creates a JWTAuth. ttl defaults to 24h if zero.
func New(secret string, ttl time.Duration) *JWTAuth {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &JWTAuth{secret: []byte(secret), ttl: ttl}
}

// Claims carried in every issued token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for the given identity.
func (a *JWTAuth) Issue(userID, username, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify parses and validates a bearer token, returning its claims.
func (a *JWTAuth) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil || !token.Valid {
		return nil, xerrors.NewClientError(http.StatusUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

// extractBearer pulls the token out of an Authorization header.
func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// Middleware wraps next, rejecting requests without a valid bearer token. On
// success it stores *Claims in the request context, where FromContext reads
// them back.
func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := extractBearer(r.Header.Get("Authorization"))
		if tok == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			xerrors.NewClientError(http.StatusUnauthorized, "bearer token required").WriteJSON(w)
			return
		}
		claims, err := a.Verify(tok)
		if err != nil {
			ge, _ := xerrors.IsGatewayError(err)
			ge.WriteJSON(w)
			return
		}
		r = r.WithContext(withClaims(r.Context(), claims))
		next.ServeHTTP(w, r)
	})
}
