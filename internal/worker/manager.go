package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"courtsim/internal/config"
	"courtsim/internal/hearing"
	"courtsim/internal/models"
	"courtsim/internal/redis"
	"courtsim/internal/scenario"
	"courtsim/internal/service/ai"
)

const (
	queueLen           = 16
	defaultIdleTimeout = 10 * time.Minute
)

var (
	ErrQueueFull = errors.New("hearing queue full")
	ErrStopped   = errors.New("worker manager stopped")
)

// Docket is the persistence the manager needs.
type Docket interface {
	GetHearingWithMessages(ctx context.Context, id string) (*models.Hearing, []models.Message, error)
	APIKey(ctx context.Context, hearingID string) (string, error)
	AddMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	ResetHearing(ctx context.Context, id, scenarioTitle string) (*models.Hearing, []models.Message, error)
	DeleteHearing(ctx context.Context, id string) error
}

// aiFactory builds the completer a hearing generates with.
var aiFactory = func(ctx context.Context, provider string, provCfg config.ProviderConfig, model, apiKey string) (hearing.Completer, error) {
	svc, err := ai.NewService(ctx, provider, provCfg, model, apiKey)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// Config tunes the manager.
type Config struct {
	MaxConcurrentRuns int
	MaxTurns          int
	IdleTimeout       time.Duration
	Generation        config.GenerationConfig
	Providers         map[string]config.ProviderConfig
}

// ConfigFrom extracts the manager settings from the app config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxConcurrentRuns: cfg.BasicConfig.MaxConcurrentRuns,
		MaxTurns:          cfg.BasicConfig.MaxTurns,
		IdleTimeout:       time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		Generation:        cfg.Generation,
		Providers:         cfg.Providers,
	}
}

// RunRequest asks a hearing to advance. A non-empty Input is submitted as
// the defendant's message first.
type RunRequest struct {
	Context   context.Context
	HearingID string
	Input     string
	Sink      hearing.Sink
}

// Manager runs every hearing on its own goroutine so that one dispatch chain
// at a time writes a transcript. Generation across hearings is capped by a
// shared semaphore.
type Manager struct {
	docket    Docket
	scenarios *scenario.Store
	cfg       Config
	sem       *semaphore.Weighted
	cache     *stateRedis
	origin    string

	mu      sync.Mutex
	workers map[string]*hearingWorker
	stopped bool
	wg      sync.WaitGroup

	stopListener context.CancelFunc
	listenerDone <-chan struct{}
}

// NewManager wires a manager. cache may be nil.
func NewManager(d Docket, scenarios *scenario.Store, cfg Config, cache *redis.Client) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		docket:    d,
		scenarios: scenarios,
		cfg:       cfg,
		cache:     newStateCache(cache),
		origin:    uuid.NewString(),
		workers:   make(map[string]*hearingWorker),
	}
	if cfg.MaxConcurrentRuns > 0 {
		m.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns))
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopListener = cancel
	m.listenerDone = m.cache.startListener(ctx, m.handleInvalidation)
	return m
}

// Run advances a hearing and reports the state it stopped in.
func (m *Manager) Run(req RunRequest) (hearing.State, error) {
	sink := req.Sink
	if sink == nil {
		sink = hearing.NopSink{}
	}
	var state hearing.State
	err := m.do(req.Context, req.HearingID, func(ctx context.Context, w *hearingWorker) error {
		c, err := m.ensureConductor(ctx, w)
		if err != nil {
			return err
		}
		defer m.storeSnapshot(w)

		if req.Input != "" {
			msg, err := c.Submit(ctx, req.Input)
			if err != nil {
				state = c.State()
				return err
			}
			sink.MessageAppended(hearing.TurnDefendant, msg)
		}
		err = c.Run(ctx, sink)
		state = c.State()
		return err
	})
	return state, err
}

// Snapshot returns the current hearing and transcript, preferring the live
// conductor, then the redis snapshot, then the docket.
func (m *Manager) Snapshot(ctx context.Context, hearingID string) (*models.Hearing, []models.Message, error) {
	m.mu.Lock()
	w := m.workers[hearingID]
	m.mu.Unlock()
	if w != nil {
		if h, c := w.state.get(); c != nil {
			return h, c.Transcript().Messages(), nil
		}
	}
	if snap, ok := m.cache.loadSnapshot(ctx, hearingID); ok {
		return snap.Hearing, snap.Messages, nil
	}
	h, msgs, err := m.docket.GetHearingWithMessages(ctx, hearingID)
	if err != nil {
		return nil, nil, err
	}
	m.cache.cacheSnapshot(snapshot{Hearing: h, Messages: msgs})
	return h, msgs, nil
}

// Reset restarts a hearing from the opening statement, optionally on another
// scenario.
func (m *Manager) Reset(ctx context.Context, hearingID, scenarioTitle string) (*models.Hearing, []models.Message, error) {
	if scenarioTitle != "" {
		if _, err := m.scenarios.ByTitle(scenarioTitle); err != nil {
			return nil, nil, err
		}
	}
	var (
		h    *models.Hearing
		msgs []models.Message
	)
	err := m.do(ctx, hearingID, func(ctx context.Context, w *hearingWorker) error {
		var err error
		h, msgs, err = m.docket.ResetHearing(ctx, hearingID, scenarioTitle)
		if err != nil {
			return err
		}
		w.state.purge()
		m.cache.cacheSnapshot(snapshot{Hearing: h, Messages: msgs})
		m.cache.publishInvalidation(invalidateMessage{HearingID: hearingID, Scope: scopeReset, Origin: m.origin})
		return nil
	})
	return h, msgs, err
}

// Delete removes a hearing and stops its worker.
func (m *Manager) Delete(ctx context.Context, hearingID string) error {
	err := m.do(ctx, hearingID, func(ctx context.Context, w *hearingWorker) error {
		if err := m.docket.DeleteHearing(ctx, hearingID); err != nil {
			return err
		}
		w.state.purge()
		m.cache.invalidateSnapshot(hearingID)
		m.cache.publishInvalidation(invalidateMessage{HearingID: hearingID, Scope: scopeDelete, Origin: m.origin})
		return nil
	})
	m.stopWorker(hearingID)
	return err
}

// Purge drops everything cached for a hearing removed elsewhere, such as by
// the expiry cleaner.
func (m *Manager) Purge(hearingID string) {
	m.cache.invalidateSnapshot(hearingID)
	m.cache.publishInvalidation(invalidateMessage{HearingID: hearingID, Scope: scopeDelete, Origin: m.origin})
	m.stopWorker(hearingID)
}

// Stop terminates all workers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for id, w := range m.workers {
		close(w.stopCh)
		delete(m.workers, id)
	}
	m.mu.Unlock()

	m.stopListener()
	<-m.listenerDone
	m.wg.Wait()
}

func (m *Manager) do(ctx context.Context, hearingID string, fn func(ctx context.Context, w *hearingWorker) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if hearingID == "" {
		return errors.New("hearing id required")
	}
	result := make(chan error, 1)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	w, ok := m.workers[hearingID]
	if !ok {
		w = newHearingWorker(hearingID)
		m.workers[hearingID] = w
		m.wg.Add(1)
		go m.runWorker(w)
	}
	select {
	case w.tasks <- task{ctx: ctx, fn: fn, result: result}:
	default:
		m.mu.Unlock()
		return ErrQueueFull
	}
	m.mu.Unlock()

	return <-result
}

func (m *Manager) stopWorker(hearingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[hearingID]; ok {
		delete(m.workers, hearingID)
		close(w.stopCh)
	}
}

func (m *Manager) runWorker(w *hearingWorker) {
	defer m.wg.Done()
	idle := time.NewTimer(m.cfg.IdleTimeout)
	defer idle.Stop()
	debugLog("hearing worker %s started", w.id)

	for {
		select {
		case <-w.stopCh:
			for {
				select {
				case t := <-w.tasks:
					t.result <- ErrStopped
				default:
					debugLog("hearing worker %s stopped", w.id)
					return
				}
			}
		case <-w.purgeCh:
			w.state.purge()
		case t := <-w.tasks:
			m.handle(w, t)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.cfg.IdleTimeout)
		case <-idle.C:
			m.mu.Lock()
			if len(w.tasks) > 0 {
				m.mu.Unlock()
				idle.Reset(m.cfg.IdleTimeout)
				continue
			}
			if m.workers[w.id] == w {
				delete(m.workers, w.id)
			}
			m.mu.Unlock()
			debugLog("hearing worker %s idle, exiting", w.id)
			return
		}
	}
}

func (m *Manager) handle(w *hearingWorker, t task) {
	select {
	case <-w.purgeCh:
		w.state.purge()
	default:
	}
	if err := t.ctx.Err(); err != nil {
		t.result <- err
		return
	}
	t.result <- t.fn(t.ctx, w)
}

func (m *Manager) ensureConductor(ctx context.Context, w *hearingWorker) (*hearing.Conductor, error) {
	if _, c := w.state.get(); c != nil {
		return c, nil
	}
	// the docket is authoritative; a snapshot may miss messages recorded by
	// a chain that failed before storing it
	h, msgs, err := m.docket.GetHearingWithMessages(ctx, w.id)
	if err != nil {
		return nil, err
	}

	sc, err := m.scenarios.ByTitle(h.ScenarioTitle)
	if err != nil {
		return nil, err
	}
	provCfg, ok := m.cfg.Providers[h.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", h.Provider)
	}
	apiKey, err := m.docket.APIKey(ctx, w.id)
	if err != nil {
		return nil, err
	}
	completer, err := aiFactory(ctx, h.Provider, provCfg, h.Model, apiKey)
	if err != nil {
		return nil, err
	}

	c := hearing.NewConductor(&limitedCompleter{inner: completer, sem: m.sem}, nil, sc, hearing.Restore(msgs), hearing.Options{
		Autopilot:        h.Autopilot,
		Coaching:         h.Coaching,
		PlaintiffCoached: h.PlaintiffCoached,
		DefendantCoached: h.DefendantCoached,
		Generation:       m.cfg.Generation.For(h.Provider),
		MaxTurns:         m.cfg.MaxTurns,
		Recorder:         &docketRecorder{docket: m.docket, hearingID: w.id},
		Logger:           logrus.WithField("hearing_id", w.id),
	})
	w.state.set(h, c)
	return c, nil
}

func (m *Manager) storeSnapshot(w *hearingWorker) {
	h, c := w.state.get()
	if c == nil {
		return
	}
	m.cache.cacheSnapshot(snapshot{Hearing: h, Messages: c.Transcript().Messages()})
	m.cache.publishInvalidation(invalidateMessage{HearingID: w.id, Scope: scopeTranscript, Origin: m.origin})
}

// handleInvalidation reacts to changes made by another instance.
func (m *Manager) handleInvalidation(inv invalidateMessage) {
	if inv.Origin == m.origin || inv.HearingID == "" {
		return
	}
	if inv.Scope == scopeDelete {
		m.stopWorker(inv.HearingID)
		return
	}
	m.mu.Lock()
	w := m.workers[inv.HearingID]
	m.mu.Unlock()
	if w != nil {
		w.requestPurge()
	}
}

type limitedCompleter struct {
	inner hearing.Completer
	sem   *semaphore.Weighted
}

func (l *limitedCompleter) Complete(ctx context.Context, turns []*schema.Message, opts ai.Options, onToken func(string) error) (string, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer l.sem.Release(1)
	}
	return l.inner.Complete(ctx, turns, opts, onToken)
}

type docketRecorder struct {
	docket    Docket
	hearingID string
}

func (r *docketRecorder) Record(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.HearingID = r.hearingID
	stored, err := r.docket.AddMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	return *stored, nil
}
