package docket

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultHearingTTL      = 2 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// StartExpiredHearingCleaner deletes hearings idle for longer than ttl every
// interval until ctx is done. onExpire, when set, is called with each removed
// hearing id so in-memory state can be dropped too.
func (s *Service) StartExpiredHearingCleaner(ctx context.Context, interval, ttl time.Duration, onExpire func(id string)) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if ttl <= 0 {
		ttl = DefaultHearingTTL
	}
	go s.cleanupLoop(ctx, interval, ttl, onExpire)
}

func (s *Service) cleanupLoop(ctx context.Context, interval, ttl time.Duration, onExpire func(id string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.CleanupExpiredHearings(ctx, time.Now().Add(-ttl))
			if err != nil {
				logrus.WithError(err).Warn("cleanup expired hearings")
			}
			for _, id := range removed {
				if onExpire != nil {
					onExpire(id)
				}
			}
		}
	}
}

// CleanupExpiredHearings removes hearings not updated since cutoff and
// returns their ids.
func (s *Service) CleanupExpiredHearings(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM hearings WHERE updated_at <= ?`, cutoff.UTC().Truncate(time.Second))
	if err != nil {
		return nil, fmt.Errorf("list expired hearings: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired hearing: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	removed := ids[:0]
	for _, id := range ids {
		if err := s.DeleteHearing(ctx, id); err != nil {
			logrus.WithError(err).WithField("hearing_id", id).Warn("delete expired hearing")
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		logrus.WithField("count", len(removed)).Info("expired hearings removed")
	}
	return removed, nil
}
