package hearing

import (
	"sync"
	"time"

	"courtsim/internal/models"
)

// OpeningStatement seeds every transcript.
const OpeningStatement = "Plaintiff's counsel, you may now begin. " + MarkerCounsel

// Seed returns the court message every hearing starts with.
func Seed() models.Message {
	return models.Message{Role: models.RoleCourt, Content: OpeningStatement}
}

// Transcript is the append-only conversation log of one hearing.
type Transcript struct {
	mu       sync.RWMutex
	messages []models.Message
}

// NewTranscript returns a transcript holding only the seed message.
func NewTranscript() *Transcript {
	t := &Transcript{}
	t.Reset()
	return t
}

// Restore rebuilds a transcript from persisted messages. An empty history is
// replaced by the seed.
func Restore(history []models.Message) *Transcript {
	if len(history) == 0 {
		return NewTranscript()
	}
	cloned := make([]models.Message, len(history))
	copy(cloned, history)
	return &Transcript{messages: cloned}
}

// Messages returns a copy of the log in chronological order.
func (t *Transcript) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len reports the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message.
func (t *Transcript) Last() (models.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return models.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// State decodes the current dispatcher state.
func (t *Transcript) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Decode(t.messages)
}

// Reset clears the log and reseeds it.
func (t *Transcript) Reset() {
	t.mu.Lock()
	t.messages = []models.Message{Seed()}
	t.mu.Unlock()
}

func (t *Transcript) append(msg models.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
}
