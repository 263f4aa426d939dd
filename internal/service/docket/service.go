package docket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Service persists hearings, their transcripts and the sealed API key each
// hearing generates with.
type Service struct {
	db     *sql.DB
	cipher *keyCipher
}

// NewService builds a docket over an already migrated database.
func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	c, err := newKeyCipherFromEnv()
	if err != nil {
		return nil, err
	}
	return &Service{db: db, cipher: c}, nil
}

// APIKey returns the decrypted key stored for a hearing.
func (s *Service) APIKey(ctx context.Context, hearingID string) (string, error) {
	var sealed string
	err := s.db.QueryRowContext(ctx, `SELECT api_key FROM hearings WHERE id = ?`, hearingID).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	key, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt api key: %w", err)
	}
	return key, nil
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
