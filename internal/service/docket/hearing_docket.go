package docket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"courtsim/internal/hearing"
	"courtsim/internal/models"
)

// CreateParams describe a new hearing.
type CreateParams struct {
	ScenarioTitle    string
	Provider         string
	Model            string
	APIKey           string
	Autopilot        bool
	Coaching         bool
	PlaintiffCoached bool
	DefendantCoached bool
}

const hearingColumns = `id, scenario_title, provider, model, autopilot, coaching, plaintiff_coached, defendant_coached, created_at, updated_at`

// CreateHearing stores a new hearing together with the court's opening
// statement and returns both.
func (s *Service) CreateHearing(ctx context.Context, p CreateParams) (*models.Hearing, []models.Message, error) {
	p.ScenarioTitle = strings.TrimSpace(p.ScenarioTitle)
	if p.ScenarioTitle == "" {
		return nil, nil, errors.New("scenario is required")
	}
	if strings.TrimSpace(p.Provider) == "" {
		return nil, nil, errors.New("provider is required")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, nil, errors.New("api key is required")
	}
	sealed, err := s.cipher.Encrypt(p.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt api key: %w", err)
	}

	now := nowUTC()
	h := &models.Hearing{
		ID:               uuid.NewString(),
		ScenarioTitle:    p.ScenarioTitle,
		Provider:         p.Provider,
		Model:            p.Model,
		Autopilot:        p.Autopilot,
		Coaching:         p.Coaching,
		PlaintiffCoached: p.PlaintiffCoached,
		DefendantCoached: p.DefendantCoached,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO hearings (id, scenario_title, provider, model, api_key, autopilot, coaching, plaintiff_coached, defendant_coached, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ScenarioTitle, h.Provider, h.Model, sealed,
		h.Autopilot, h.Coaching, h.PlaintiffCoached, h.DefendantCoached, now, now,
	); err != nil {
		return nil, nil, fmt.Errorf("create hearing: %w", err)
	}
	seed, err := insertMessage(ctx, tx, h.ID, hearing.Seed())
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit create hearing: %w", err)
	}
	return h, []models.Message{seed}, nil
}

// GetHearing loads one hearing without its transcript.
func (s *Service) GetHearing(ctx context.Context, id string) (*models.Hearing, error) {
	var h models.Hearing
	err := s.db.QueryRowContext(ctx,
		`SELECT `+hearingColumns+` FROM hearings WHERE id = ?`, id,
	).Scan(&h.ID, &h.ScenarioTitle, &h.Provider, &h.Model, &h.Autopilot, &h.Coaching,
		&h.PlaintiffCoached, &h.DefendantCoached, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get hearing: %w", err)
	}
	return &h, nil
}

// GetHearingWithMessages returns one hearing and its transcript in the order
// it was recorded.
func (s *Service) GetHearingWithMessages(ctx context.Context, id string) (*models.Hearing, []models.Message, error) {
	h, err := s.GetHearing(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return h, nil, err
	}
	return h, msgs, nil
}

// ListMessages returns the transcript of a hearing ordered by insertion.
func (s *Service) ListMessages(ctx context.Context, hearingID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hearing_id, role, content, created_at FROM messages WHERE hearing_id = ? ORDER BY id ASC`,
		hearingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.HearingID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if !m.Role.Valid() {
			return nil, fmt.Errorf("message %d has invalid role %q", m.ID, m.Role)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AddMessage stores a new message and updates the hearing's updated_at timestamp.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	stored, err := insertMessage(ctx, s.db, msg.HearingID, msg)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE hearings SET updated_at = ? WHERE id = ?`, stored.CreatedAt, msg.HearingID); err != nil {
		return nil, fmt.Errorf("touch hearing: %w", err)
	}
	return &stored, nil
}

// ResetHearing discards the transcript and starts over from the opening
// statement. A non-empty scenarioTitle rebinds the hearing to that scenario.
func (s *Service) ResetHearing(ctx context.Context, id, scenarioTitle string) (*models.Hearing, []models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := nowUTC()
	var res sql.Result
	if title := strings.TrimSpace(scenarioTitle); title != "" {
		res, err = tx.ExecContext(ctx, `UPDATE hearings SET scenario_title = ?, updated_at = ? WHERE id = ?`, title, now, id)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE hearings SET updated_at = ? WHERE id = ?`, now, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reset hearing: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, nil, fmt.Errorf("hearing rows affected: %w", err)
	} else if affected == 0 {
		return nil, nil, sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE hearing_id = ?`, id); err != nil {
		return nil, nil, fmt.Errorf("clear messages: %w", err)
	}
	if _, err := insertMessage(ctx, tx, id, hearing.Seed()); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit reset hearing: %w", err)
	}
	return s.GetHearingWithMessages(ctx, id)
}

// DeleteHearing removes a hearing with its transcript and tokens.
func (s *Service) DeleteHearing(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE hearing_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hearing_tokens WHERE hearing_id = ?`, id); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM hearings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete hearing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hearing rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete hearing: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, hearingID string, msg models.Message) (models.Message, error) {
	if !msg.Role.Valid() {
		return models.Message{}, fmt.Errorf("invalid message role %q", msg.Role)
	}
	now := nowUTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO messages (hearing_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		hearingID, msg.Role, msg.Content, now,
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Message{}, fmt.Errorf("message id: %w", err)
	}
	msg.ID = id
	msg.HearingID = hearingID
	msg.CreatedAt = now
	return msg, nil
}
