package worker

import (
	"context"
	"sync"

	"courtsim/internal/hearing"
	"courtsim/internal/models"
)

// hearingState is owned by one hearing worker. The conductor is rebuilt
// lazily after a purge.
type hearingState struct {
	mu        sync.RWMutex
	hearing   *models.Hearing
	conductor *hearing.Conductor
}

func (s *hearingState) get() (*models.Hearing, *hearing.Conductor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hearing, s.conductor
}

func (s *hearingState) set(h *models.Hearing, c *hearing.Conductor) {
	s.mu.Lock()
	s.hearing = h
	s.conductor = c
	s.mu.Unlock()
}

func (s *hearingState) purge() {
	s.set(nil, nil)
}

// task is one unit of serial work on a hearing.
type task struct {
	ctx    context.Context
	fn     func(ctx context.Context, w *hearingWorker) error
	result chan error
}

type hearingWorker struct {
	id      string
	tasks   chan task
	purgeCh chan struct{}
	stopCh  chan struct{}
	state   hearingState
}

func newHearingWorker(id string) *hearingWorker {
	return &hearingWorker{
		id:      id,
		tasks:   make(chan task, queueLen),
		purgeCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// requestPurge asks the worker to drop its cached conductor before the next task.
func (w *hearingWorker) requestPurge() {
	select {
	case w.purgeCh <- struct{}{}:
	default:
	}
}

// snapshot is the cached view of a hearing shared through redis.
type snapshot struct {
	Hearing  *models.Hearing  `json:"hearing"`
	Messages []models.Message `json:"messages"`
}
