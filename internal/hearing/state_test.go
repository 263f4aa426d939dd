package hearing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"courtsim/internal/models"
)

func TestTrailingMarkerIsExactSuffix(t *testing.T) {
	cases := map[string]string{
		"Counsel, please proceed. [PC]":  MarkerCounsel,
		"Defendant, your reply. [DC]":    MarkerDefendant,
		"Application dismissed. [END]":   MarkerEnd,
		"[PC]":                           MarkerCounsel,
		"Proceed. [PCX]":                 "",
		"[PC] then something else":       "",
		"Proceed. [PC] ":                 "",
		"Proceed. [PC].":                 "",
		"Proceed. [pc]":                  "",
		"No marker at all":               "",
		"":                               "",
		"The court notes [DC] and [END]": MarkerEnd,
	}
	for content, want := range cases {
		assert.Equal(t, want, TrailingMarker(content), "content %q", content)
	}
}

func court(content string) models.Message {
	return models.Message{Role: models.RoleCourt, Content: content}
}

func counsel(content string) models.Message {
	return models.Message{Role: models.RoleCounsel, Content: content}
}

func defendant(content string) models.Message {
	return models.Message{Role: models.RoleDefendant, Content: content}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		msgs []models.Message
		want State
	}{
		{"empty", nil, Idle},
		{"seed", []models.Message{Seed()}, AwaitingCounsel},
		{"counsel spoke", []models.Message{Seed(), counsel("arg")}, AwaitingCourtResponse},
		{"defendant spoke", []models.Message{Seed(), defendant("reply")}, AwaitingCourtResponse},
		{"defendant called", []models.Message{Seed(), counsel("arg"), court("Reply? [DC]")}, AwaitingDefendant},
		{"marker mid string", []models.Message{court("[PC] is how I hand over")}, Idle},
		{"plain court statement", []models.Message{Seed(), counsel("arg"), court("Noted.")}, Idle},
		{"end", []models.Message{Seed(), counsel("arg"), court("Allowed. [END]")}, Concluding},
		{"after costs", []models.Message{Seed(), court("Allowed. [END]"), court("Costs of $1000.")}, Terminated},
		{"stray marker after end", []models.Message{court("Allowed. [END]"), court("Costs [PC]")}, Terminated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.msgs))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_defendant", AwaitingDefendant.String())
	assert.Equal(t, "idle", State(99).String())
}

func TestTranscriptResetAndRestore(t *testing.T) {
	tr := NewTranscript()
	assert.Equal(t, []models.Message{Seed()}, tr.Messages())

	tr.append(counsel("arg"))
	assert.Equal(t, 2, tr.Len())
	last, ok := tr.Last()
	assert.True(t, ok)
	assert.Equal(t, "arg", last.Content)
	assert.False(t, last.CreatedAt.IsZero())

	tr.Reset()
	assert.Equal(t, 1, tr.Len())

	restored := Restore([]models.Message{Seed(), counsel("x"), court("y [DC]")})
	assert.Equal(t, AwaitingDefendant, restored.State())
	assert.Equal(t, 1, Restore(nil).Len())
}

func TestTranscriptMessagesIsACopy(t *testing.T) {
	tr := NewTranscript()
	msgs := tr.Messages()
	msgs[0].Content = "tampered"
	first, _ := tr.Last()
	assert.Equal(t, OpeningStatement, first.Content)
}
