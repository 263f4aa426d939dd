package models

import "time"

// Hearing is a single hearing session bound to one scenario.
type Hearing struct {
	ID               string    `json:"id"`
	ScenarioTitle    string    `json:"scenario_title"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Autopilot        bool      `json:"autopilot"`
	Coaching         bool      `json:"coaching"`
	PlaintiffCoached bool      `json:"plaintiff_coached"`
	DefendantCoached bool      `json:"defendant_coached"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
