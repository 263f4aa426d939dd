package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"courtsim/internal/redis"
)

const redisTokenPrefix = "courtsim:token:"

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// Service issues, validates, and revokes hearing access tokens. A token grants
// access to exactly one hearing.
type Service struct {
	db         *sql.DB
	cache      *redis.Client
	tokenTTL   time.Duration
	headerName string
}

// NewService constructs an auth service with the supplied token lifetime.
// cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:         db,
		cache:      cache,
		tokenTTL:   ttl,
		headerName: "Authorization",
	}
}

// IssueToken mints a new random token for the hearing and persists it.
func (s *Service) IssueToken(ctx context.Context, hearingID string) (string, error) {
	if hearingID == "" {
		return "", errors.New("invalid hearing id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO hearing_tokens (token, hearing_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, hearingID, now, expiresAt,
		)
		if err == nil {
			if err := s.cache.Set(ctx, redisTokenPrefix+token, hearingID, s.tokenTTL); err != nil {
				logrus.WithError(err).Warn("cache hearing token")
			}
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// ValidateToken verifies the token exists and has not expired, returning the
// hearing id it grants access to.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", ErrTokenRequired
	}
	if hearingID, err := s.cache.Get(ctx, redisTokenPrefix+authToken); err == nil && hearingID != "" {
		return hearingID, nil
	}
	var hearingID string
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT hearing_id, expires_at FROM hearing_tokens WHERE token = ?`, authToken,
	).Scan(&hearingID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM hearing_tokens WHERE token = ?`, authToken)
		return "", ErrTokenExpired
	}
	return hearingID, nil
}

// TokenExpiresIn reports how long the token stays valid. The cached ttl is
// used when redis holds the token.
func (s *Service) TokenExpiresIn(ctx context.Context, authToken string) (time.Duration, error) {
	if ttl, err := s.cache.TTL(ctx, redisTokenPrefix+authToken); err == nil && ttl > 0 {
		return ttl, nil
	}
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM hearing_tokens WHERE token = ?`, authToken,
	).Scan(&expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("lookup token: %w", err)
	}
	left := time.Until(expires)
	if left <= 0 {
		return 0, ErrTokenExpired
	}
	return left, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hearing_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return s.cache.Del(ctx, redisTokenPrefix+authToken)
}

// RevokeHearingTokens removes all tokens belonging to the hearing.
func (s *Service) RevokeHearingTokens(ctx context.Context, hearingID string) error {
	if hearingID == "" {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM hearing_tokens WHERE hearing_id = ?`, hearingID)
	if err != nil {
		return fmt.Errorf("list hearing tokens: %w", err)
	}
	var keys []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return fmt.Errorf("scan token: %w", err)
		}
		keys = append(keys, redisTokenPrefix+token)
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM hearing_tokens WHERE hearing_id = ?`, hearingID); err != nil {
		return fmt.Errorf("revoke hearing tokens: %w", err)
	}
	return s.cache.Del(ctx, keys...)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
