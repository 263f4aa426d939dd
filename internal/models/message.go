package models

import "time"

// Role identifies who authored a message in the hearing transcript.
type Role string

const (
	RoleCourt     Role = "court"
	RoleCounsel   Role = "counsel"
	RoleDefendant Role = "defendant"
)

// Valid reports whether r is one of the three hearing roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCourt, RoleCounsel, RoleDefendant:
		return true
	}
	return false
}

// Message is one entry of a hearing transcript.
type Message struct {
	ID        int64     `json:"id,omitempty"`
	HearingID string    `json:"hearing_id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
