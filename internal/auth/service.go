package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"motivechat/internal/apperr"
	"motivechat/internal/models"
)

// Claims carried by a bearer token. Subject holds the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates stateless bearer tokens signed with a process-wide key.
// Nothing is stored server side: logout is the client discarding its token.
type Service struct {
	secret     []byte
	tokenTTL   time.Duration
	headerName string
	now        func() time.Time
}

// NewService constructs an auth service with the supplied key and token lifetime.
func NewService(secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:     secret,
		tokenTTL:   ttl,
		headerName: "Authorization",
		now:        time.Now,
	}
}

// IssueToken mints a signed token for the user and returns it with its expiry.
func (s *Service) IssueToken(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID <= 0 {
		return "", time.Time{}, errors.New("invalid user id")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing key not configured")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.tokenTTL)
	claims := Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks the signature first, then expiry, and returns the user id.
// Anything that does not verify is rejected; there is no anonymous fallback.
func (s *Service) ValidateToken(authToken string) (int64, error) {
	if authToken == "" {
		return 0, apperr.ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(authToken, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperr.ErrExpiredToken
		}
		return 0, apperr.ErrInvalidToken
	}
	if !token.Valid {
		return 0, apperr.ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperr.ErrInvalidToken
	}
	return userID, nil
}
