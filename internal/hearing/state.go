package hearing

import (
	"strings"

	"courtsim/internal/models"
)

// Control markers the court appends to hand over the floor.
const (
	MarkerCounsel   = "[PC]"
	MarkerDefendant = "[DC]"
	MarkerEnd       = "[END]"
)

// State is the dispatcher state decoded from a transcript.
type State int

const (
	// Idle means nothing matches: an empty transcript or a court statement
	// without a marker.
	Idle State = iota
	AwaitingCounsel
	AwaitingDefendant
	AwaitingCourtResponse
	Concluding
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingCounsel:
		return "awaiting_counsel"
	case AwaitingDefendant:
		return "awaiting_defendant"
	case AwaitingCourtResponse:
		return "awaiting_court_response"
	case Concluding:
		return "concluding"
	case Terminated:
		return "terminated"
	default:
		return "idle"
	}
}

// TrailingMarker returns the control marker content ends with, or "".
// Only an exact suffix counts; whitespace after the marker disables it.
func TrailingMarker(content string) string {
	for _, m := range []string{MarkerCounsel, MarkerDefendant, MarkerEnd} {
		if strings.HasSuffix(content, m) {
			return m
		}
	}
	return ""
}

// Decode derives the dispatcher state from the transcript. Once a court
// message ending in [END] has been followed by anything, the hearing is over.
func Decode(msgs []models.Message) State {
	if len(msgs) == 0 {
		return Idle
	}
	last := len(msgs) - 1
	for _, m := range msgs[:last] {
		if m.Role == models.RoleCourt && TrailingMarker(m.Content) == MarkerEnd {
			return Terminated
		}
	}
	if msgs[last].Role != models.RoleCourt {
		return AwaitingCourtResponse
	}
	switch TrailingMarker(msgs[last].Content) {
	case MarkerCounsel:
		return AwaitingCounsel
	case MarkerDefendant:
		return AwaitingDefendant
	case MarkerEnd:
		return Concluding
	default:
		return Idle
	}
}
