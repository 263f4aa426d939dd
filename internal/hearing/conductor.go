package hearing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"courtsim/internal/config"
	"courtsim/internal/models"
	"courtsim/internal/prompt"
	"courtsim/internal/service/ai"
)

var (
	// ErrOutOfTurn rejects defendant input while another party holds the floor.
	ErrOutOfTurn = errors.New("defendant may not speak now")
	// ErrHearingClosed rejects defendant input once the court has concluded.
	ErrHearingClosed = errors.New("hearing has concluded")
	// ErrTurnLimit stops a chain that exceeded Options.MaxTurns.
	ErrTurnLimit = errors.New("turn limit reached")
	// ErrBusy means another dispatch chain is running on the same hearing.
	ErrBusy = errors.New("hearing is busy")
	// ErrEmptyInput rejects blank defendant submissions.
	ErrEmptyInput = errors.New("content cannot be empty")
)

// Turn identifies one generation step of the hearing.
type Turn string

const (
	TurnCounsel           Turn = "counsel"
	TurnDefendant         Turn = "defendant"
	TurnCourt             Turn = "court"
	TurnCosts             Turn = "costs"
	TurnPlaintiffCoaching Turn = "plaintiff_coaching"
	TurnDefendantCoaching Turn = "defendant_coaching"
)

// Role reports which transcript role a turn's message is appended as.
func (t Turn) Role() models.Role {
	switch t {
	case TurnCounsel:
		return models.RoleCounsel
	case TurnDefendant:
		return models.RoleDefendant
	default:
		return models.RoleCourt
	}
}

// Completer generates the text for a list of composed turns.
type Completer interface {
	Complete(ctx context.Context, turns []*schema.Message, opts ai.Options, onToken func(string) error) (string, error)
}

// Recorder persists a message before it joins the transcript. The returned
// message (with ids and timestamps filled in) is what gets appended.
type Recorder interface {
	Record(ctx context.Context, msg models.Message) (models.Message, error)
}

// Sink observes a dispatch chain as it runs.
type Sink interface {
	TurnStarted(turn Turn)
	Token(turn Turn, chunk string) error
	MessageAppended(turn Turn, msg models.Message)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) TurnStarted(Turn)                     {}
func (NopSink) Token(Turn, string) error             { return nil }
func (NopSink) MessageAppended(Turn, models.Message) {}

// Options are fixed for the lifetime of a Conductor.
type Options struct {
	Autopilot        bool
	Coaching         bool
	PlaintiffCoached bool
	DefendantCoached bool
	Generation       config.GenerationConfig
	// MaxTurns caps the generations of a single Run; zero means no cap.
	MaxTurns int
	Recorder Recorder
	Logger   *logrus.Entry
}

// Conductor drives one hearing: it decodes the transcript state and generates
// turns until the floor passes to a human defendant or the hearing ends.
type Conductor struct {
	mu         sync.Mutex
	completer  Completer
	composer   *prompt.Composer
	scenario   models.Scenario
	transcript *Transcript
	opts       Options
	log        *logrus.Entry
}

// NewConductor binds a scenario and transcript to a completer.
func NewConductor(completer Completer, composer *prompt.Composer, sc models.Scenario, transcript *Transcript, opts Options) *Conductor {
	if composer == nil {
		composer = prompt.NewComposer(prompt.DefaultTemplates())
	}
	if transcript == nil {
		transcript = NewTranscript()
	}
	if opts.Generation == (config.GenerationConfig{}) {
		opts.Generation = config.Default().Generation
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Conductor{
		completer:  completer,
		composer:   composer,
		scenario:   sc,
		transcript: transcript,
		opts:       opts,
		log:        log.WithField("scenario", sc.RuleTitle),
	}
}

// Scenario returns the bound scenario.
func (c *Conductor) Scenario() models.Scenario { return c.scenario }

// Transcript returns the conversation state.
func (c *Conductor) Transcript() *Transcript { return c.transcript }

// State decodes the current dispatcher state.
func (c *Conductor) State() State { return c.transcript.State() }

// Run advances the hearing until it waits for a human defendant or ends.
// A failed generation leaves the transcript as it was before that turn, so
// calling Run again retries the same transition.
func (c *Conductor) Run(ctx context.Context, sink Sink) error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()
	if sink == nil {
		sink = NopSink{}
	}

	generated := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var turn Turn
		switch state := c.transcript.State(); state {
		case AwaitingCounsel:
			turn = TurnCounsel
		case AwaitingDefendant:
			if !c.opts.Autopilot {
				return nil
			}
			turn = TurnDefendant
		case AwaitingCourtResponse:
			turn = TurnCourt
		case Concluding, Terminated:
			return c.conclude(ctx, sink)
		default:
			return nil
		}
		if c.opts.MaxTurns > 0 && generated >= c.opts.MaxTurns {
			c.log.WithField("max_turns", c.opts.MaxTurns).Warn("turn limit reached")
			return ErrTurnLimit
		}
		if err := c.argue(ctx, sink, turn); err != nil {
			return err
		}
		generated++
	}
}

// Submit appends a defendant message supplied from outside. Run must be
// called afterwards to let the court respond. Input is also taken while Idle,
// so a court statement that lost its marker does not stall the hearing.
func (c *Conductor) Submit(ctx context.Context, content string) (models.Message, error) {
	if !c.mu.TryLock() {
		return models.Message{}, ErrBusy
	}
	defer c.mu.Unlock()

	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyInput
	}
	switch c.transcript.State() {
	case AwaitingDefendant, Idle:
	case Concluding, Terminated:
		return models.Message{}, ErrHearingClosed
	default:
		return models.Message{}, ErrOutOfTurn
	}
	return c.commit(ctx, NopSink{}, TurnDefendant, content)
}

func (c *Conductor) argue(ctx context.Context, sink Sink, turn Turn) error {
	role := turn.Role()
	turns, err := c.composer.Compose(ctx, role, c.transcript.Messages(), c.scenario, c.coachingNote(role))
	if err != nil {
		return err
	}
	return c.generate(ctx, sink, turn, turns)
}

// conclude produces the costs ruling and, when enabled, the coaching reviews.
// Steps already present after the [END] message are skipped, so a retry
// resumes where a failed attempt stopped.
func (c *Conductor) conclude(ctx context.Context, sink Sink) error {
	msgs := c.transcript.Messages()
	end := -1
	for i, m := range msgs {
		if m.Role == models.RoleCourt && TrailingMarker(m.Content) == MarkerEnd {
			end = i
			break
		}
	}
	if end < 0 {
		return nil
	}
	record := msgs[:end+1]
	steps := []Turn{TurnCosts}
	if c.opts.Coaching {
		steps = append(steps, TurnPlaintiffCoaching, TurnDefendantCoaching)
	}
	for _, turn := range steps[min(len(msgs)-end-1, len(steps)):] {
		var (
			turns []*schema.Message
			err   error
		)
		switch turn {
		case TurnCosts:
			turns, err = c.composer.ComposeCostsRuling(ctx, record)
		case TurnPlaintiffCoaching:
			turns, err = c.composer.ComposeCoaching(ctx, record, prompt.PartyPlaintiff)
		case TurnDefendantCoaching:
			turns, err = c.composer.ComposeCoaching(ctx, record, prompt.PartyDefendant)
		}
		if err != nil {
			return err
		}
		if err := c.generate(ctx, sink, turn, turns); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conductor) generate(ctx context.Context, sink Sink, turn Turn, turns []*schema.Message) error {
	gen := c.generation(turn)
	log := c.log.WithField("turn", turn)
	log.Debug("generating")

	sink.TurnStarted(turn)
	text, err := c.completer.Complete(ctx, turns, ai.Options{
		Model:       gen.Model,
		Temperature: gen.Temperature,
		Streaming:   true,
	}, func(chunk string) error {
		return sink.Token(turn, chunk)
	})
	if err != nil {
		log.WithError(err).Warn("generation failed, transcript left unchanged")
		return err
	}
	_, err = c.commit(ctx, sink, turn, text)
	return err
}

func (c *Conductor) commit(ctx context.Context, sink Sink, turn Turn, content string) (models.Message, error) {
	msg := models.Message{Role: turn.Role(), Content: content}
	if c.opts.Recorder != nil {
		stored, err := c.opts.Recorder.Record(ctx, msg)
		if err != nil {
			return models.Message{}, err
		}
		msg = stored
	}
	c.transcript.append(msg)
	appended, _ := c.transcript.Last()
	sink.MessageAppended(turn, appended)
	return appended, nil
}

func (c *Conductor) coachingNote(role models.Role) string {
	switch {
	case role == models.RoleCounsel && c.opts.PlaintiffCoached:
		return c.scenario.PlaintiffCoach
	case role == models.RoleDefendant && c.opts.DefendantCoached:
		return c.scenario.DefendantCoach
	}
	return ""
}

func (c *Conductor) generation(turn Turn) config.RoleGeneration {
	g := c.opts.Generation
	switch turn {
	case TurnCounsel:
		return g.Counsel
	case TurnDefendant:
		return g.Defendant
	case TurnCosts:
		return g.Costs
	case TurnPlaintiffCoaching, TurnDefendantCoaching:
		return g.Coaching
	default:
		return g.Court
	}
}
