package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"motivechat/internal/apperr"
	"motivechat/internal/models"
	"motivechat/internal/storage"
)

const (
	minUsernameChars = 3
	maxUsernameChars = 64
	// bcrypt ignores everything past 72 bytes, so longer passwords are rejected.
	maxPasswordBytes = 72
)

// Service owns the credential and history tables.
type Service struct {
	db         *sql.DB
	driver     string
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

// NewService builds a new assistant service. A cost of zero selects bcrypt.DefaultCost.
func NewService(db *sql.DB, driver string, bcryptCost int) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
	}
	// compared against when the username is unknown so both failure paths cost one bcrypt check
	dummy, err := bcrypt.GenerateFromPassword([]byte("motivechat-unknown-user"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		db:         db,
		driver:     storage.Normalize(driver),
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// CreateUser registers a user. Duplicate usernames fail with apperr.ErrDuplicateUsername.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, string(hash), now,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, apperr.ErrDuplicateUsername
		}
		return nil, apperr.Storage(fmt.Errorf("create user: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("user id: %w", err))
	}
	return &models.User{ID: id, Username: username, PasswordHash: string(hash), CreatedAt: now}, nil
}

// VerifyCredentials returns the user when the password matches. Unknown users and
// wrong passwords both fail with apperr.ErrInvalidCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	// bcrypt compares only the first 72 bytes; longer input can never be a stored password
	if len(password) > maxPasswordBytes {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password[:maxPasswordBytes]))
		return nil, apperr.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Storage(fmt.Errorf("query user: %w", err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	return &user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, apperr.Storage(fmt.Errorf("query user: %w", err))
	}
	return &user, nil
}

func validateCredentials(username, password string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameChars || n > maxUsernameChars {
		return apperr.Validation(fmt.Sprintf("username must be between %d and %d characters", minUsernameChars, maxUsernameChars))
	}
	if password == "" {
		return apperr.Validation("password is required")
	}
	if len(password) > maxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
