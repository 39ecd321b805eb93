package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, salt, err := hashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.NotEmpty(t, salt)

	ok, err := verifyPassword("correct horse battery staple", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("wrong password", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	hash1, salt1, err := hashPassword("same password")
	require.NoError(t, err)
	hash2, salt2, err := hashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, hash1, hash2)
}

func TestRegisterMemberValidation(t *testing.T) {
	svc := NewService(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		member   string
		password string
	}{
		{"missing email", "", "Alice", "SecurePass123!"},
		{"malformed email", "not-an-email", "Alice", "SecurePass123!"},
		{"missing name", "alice@example.com", "  ", "SecurePass123!"},
		{"short password", "alice@example.com", "Alice", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterMember(ctx, tt.email, tt.member, tt.password, uuid.Nil)
			require.True(t, errors.Is(err, ErrValidation), "want ErrValidation, got %v", err)
		})
	}
}

func TestIssueTokenCarriesGroup(t *testing.T) {
	member := &Member{
		ID:      uuid.New(),
		Name:    "Alice",
		GroupID: uuid.New(),
		Status:  "active",
	}

	token, err := issueToken(member)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
