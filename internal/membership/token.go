package membership

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomledger/internal/middleware"
)

const sessionTTL = 24 * time.Hour

// issueToken signs a session token for the member.
func issueToken(member *Member) (string, error) {
	now := time.Now()
	claims := middleware.Claims{
		MemberID: member.ID.String(),
		Name:     member.Name,
		GroupID:  member.GroupID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   member.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(middleware.Secret())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
