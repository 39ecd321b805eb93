package membership

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/time/rate"

	"roomledger/pkg/journal"
)

// service implements the Service interface.
type service struct {
	journal     *journal.Journal
	db          *sql.DB
	rateLimiter *rate.Limiter
}

// NewService creates a new membership service instance.
func NewService(j *journal.Journal, db *sql.DB) Service {
	return &service{
		journal:     j,
		db:          db,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 requests per minute
	}
}

// RegisterMember creates a new member inside a household group. A zero
// groupID starts a new group.
func (s *service) RegisterMember(ctx context.Context, email, name, password string, groupID uuid.UUID) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case len(password) < 8:
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	id := uuid.New()
	if groupID == uuid.Nil {
		groupID = uuid.New()
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	eventData := MemberRegisteredEvent{
		ID:      id,
		Email:   email,
		Name:    name,
		GroupID: groupID,
	}
	payload, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	entry := journal.Entry{
		AggregateID: id,
		EntryType:   "MemberRegistered",
		Payload:     payload,
		Version:     1,
	}

	member := &Member{
		ID:      id,
		Email:   email,
		Name:    name,
		GroupID: groupID,
		Status:  "active",
		Version: 1,
	}
	credential := &Credential{
		MemberID:     id,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	// Journal entry, member row, and credential commit together: a failed
	// insert must not leave a registered-member entry behind.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.journal.AppendTx(ctx, tx, id, "member", 0, []journal.Entry{entry}); err != nil {
		return nil, fmt.Errorf("failed to append journal entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO members (id, email, name, group_id, status, version)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, member.ID, member.Email, member.Name, member.GroupID, member.Status, member.Version)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already registered", ErrValidation)
		}
		return nil, fmt.Errorf("failed to insert member: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (member_id, password_hash, salt)
		VALUES ($1, $2, $3)
	`, credential.MemberID, credential.PasswordHash, credential.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return member, nil
}

// Authenticate verifies a member's credentials and returns the member with a
// signed session token.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, string, error) {
	if !s.rateLimiter.Allow() {
		return nil, "", ErrRateLimited
	}

	email = strings.TrimSpace(strings.ToLower(email))

	member, err := s.getMemberByEmail(ctx, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", ErrUnauthorized
		}
		return nil, "", fmt.Errorf("authentication failed: %w", err)
	}
	if member.Status != "active" {
		return nil, "", ErrUnauthorized
	}

	credential, err := s.getCredentialByMemberID(ctx, member.ID)
	if err != nil {
		return nil, "", fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, "", ErrUnauthorized
	}

	token, err := issueToken(member)
	if err != nil {
		return nil, "", err
	}

	return member, token, nil
}

func (s *service) getMemberByEmail(ctx context.Context, email string) (*Member, error) {
	member := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, group_id, status, version, created_at, updated_at
		FROM members
		WHERE email = $1
	`, email).Scan(
		&member.ID,
		&member.Email,
		&member.Name,
		&member.GroupID,
		&member.Status,
		&member.Version,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *service) getCredentialByMemberID(ctx context.Context, memberID uuid.UUID) (*Credential, error) {
	credential := &Credential{}
	err := s.db.QueryRowContext(ctx, `
		SELECT member_id, password_hash, salt
		FROM credentials
		WHERE member_id = $1
	`, memberID).Scan(
		&credential.MemberID,
		&credential.PasswordHash,
		&credential.Salt,
	)
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	member := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, group_id, status, version, created_at, updated_at
		FROM members
		WHERE id = $1
	`, id).Scan(
		&member.ID,
		&member.Email,
		&member.Name,
		&member.GroupID,
		&member.Status,
		&member.Version,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// DeactivateMember marks a member as inactive. Their past purchases keep
// counting in the settlement.
func (s *service) DeactivateMember(ctx context.Context, id uuid.UUID) error {
	member, err := s.GetMember(ctx, id)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(MemberDeactivatedEvent{ID: id})
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	entry := journal.Entry{
		AggregateID: id,
		EntryType:   "MemberDeactivated",
		Payload:     payload,
		Version:     member.Version + 1,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.journal.AppendTx(ctx, tx, id, "member", member.Version, []journal.Entry{entry}); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE members
		SET status = 'inactive', version = $1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, member.Version+1, id, member.Version)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return journal.ErrConflict
	}

	return tx.Commit()
}
