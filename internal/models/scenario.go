package models

// Scenario describes the legal rule and facts a hearing argues over.
// Empty optional fields mean the column was absent or blank.
type Scenario struct {
	RuleTitle      string `json:"rule_title"`
	RuleContent    string `json:"rule_content"`
	RuleSecondary  string `json:"rule_secondary,omitempty"`
	CaseBackground string `json:"case_background"`
	Application    string `json:"application"`
	PlaintiffCoach string `json:"plaintiff_coach,omitempty"`
	DefendantCoach string `json:"defendant_coach,omitempty"`
}

// Fields returns the template variables rendered into role instructions.
func (s Scenario) Fields() map[string]any {
	return map[string]any{
		"rule_title":      s.RuleTitle,
		"rule_content":    s.RuleContent,
		"rule_secondary":  s.RuleSecondary,
		"case_background": s.CaseBackground,
		"application":     s.Application,
	}
}
