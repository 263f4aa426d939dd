package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"courtsim/internal/redis"
)

const (
	redisInvalidateChannel = "courtsim:hearing:invalidate"
	redisSnapshotPrefix    = "courtsim:hearing:"
	redisStateTTL          = 30 * time.Minute
)

const (
	scopeTranscript = "transcript"
	scopeReset      = "reset"
	scopeDelete     = "delete"
)

type invalidateMessage struct {
	HearingID string `json:"hearing_id"`
	Scope     string `json:"scope"`
	Origin    string `json:"origin"`
}

type stateRedis struct {
	client *redis.Client
}

func newStateCache(client *redis.Client) *stateRedis {
	return &stateRedis{client: client}
}

func (r *stateRedis) enabled() bool {
	return r != nil && r.client.Enabled()
}

// startListener delivers invalidations until ctx is done. done is closed
// once the subscription has been torn down.
func (r *stateRedis) startListener(ctx context.Context, handler func(invalidateMessage)) (done <-chan struct{}) {
	closed := make(chan struct{})
	if !r.enabled() || handler == nil {
		close(closed)
		return closed
	}
	pubsub := r.client.Subscribe(ctx, redisInvalidateChannel)
	go func() {
		defer close(closed)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					logrus.WithError(err).Warn("hearing invalidation decode failed")
					continue
				}
				handler(inv)
			}
		}
	}()
	return closed
}

// publishInvalidation broadcasts a change to other instances.
func (r *stateRedis) publishInvalidation(msg invalidateMessage) {
	if !r.enabled() {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Warn("hearing invalidation marshal failed")
		return
	}
	if err := r.client.Publish(context.Background(), redisInvalidateChannel, string(payload)); err != nil {
		logrus.WithError(err).Warn("hearing invalidation publish failed")
	}
}

func (r *stateRedis) cacheSnapshot(snap snapshot) {
	if !r.enabled() || snap.Hearing == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		logrus.WithError(err).Warn("hearing snapshot marshal failed")
		return
	}
	if err := r.client.Set(context.Background(), redisSnapshotPrefix+snap.Hearing.ID, data, redisStateTTL); err != nil {
		logrus.WithError(err).Warn("hearing snapshot cache failed")
	}
}

func (r *stateRedis) loadSnapshot(ctx context.Context, hearingID string) (snapshot, bool) {
	if !r.enabled() {
		return snapshot{}, false
	}
	raw, err := r.client.Get(ctx, redisSnapshotPrefix+hearingID)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			logrus.WithError(err).Warn("hearing snapshot load failed")
		}
		return snapshot{}, false
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		logrus.WithError(err).Warn("hearing snapshot decode failed")
		return snapshot{}, false
	}
	if snap.Hearing == nil || snap.Hearing.ID != hearingID || len(snap.Messages) == 0 {
		return snapshot{}, false
	}
	return snap, true
}

func (r *stateRedis) invalidateSnapshot(hearingID string) {
	if !r.enabled() {
		return
	}
	if err := r.client.Del(context.Background(), redisSnapshotPrefix+hearingID); err != nil {
		logrus.WithError(err).Warn("hearing snapshot invalidate failed")
	}
}
