// Package middleware carries the JWT bearer authentication shared by the
// ledger routes.
package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the session claims issued by the membership service.
type Claims struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	GroupID  string `json:"group_id"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// Secret returns the HMAC signing key shared with the membership service.
func Secret() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("dev_secret_change_in_prod")
}

// Authenticate verifies the Authorization bearer token and stores the session
// claims in the request context.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, "invalid token format", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			return Secret(), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the session claims, or nil outside an authenticated
// request.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// MemberID returns the authenticated member's ID, uuid.Nil when absent.
func MemberID(ctx context.Context) uuid.UUID {
	claims := FromContext(ctx)
	if claims == nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(claims.MemberID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GroupID returns the authenticated member's group, uuid.Nil when absent.
func GroupID(ctx context.Context) uuid.UUID {
	claims := FromContext(ctx)
	if claims == nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(claims.GroupID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
