package scenario

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"courtsim/internal/models"
)

//go:embed court_rules.csv
var defaultRules string

// ErrScenarioNotFound is returned when no scenario matches a lookup key.
var ErrScenarioNotFound = errors.New("scenario not found")

// MalformedScenarioError reports a scenario source missing required data.
// Row is 1-based and counts the header; Row 0 means the header itself.
type MalformedScenarioError struct {
	Row   int
	Field string
}

func (e *MalformedScenarioError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("malformed scenario source: missing column %q", e.Field)
	}
	return fmt.Sprintf("malformed scenario source: row %d has no %s", e.Row, e.Field)
}

var requiredColumns = []string{"rule_title", "rule_content", "case_background", "application"}

// Store holds scenarios in source order.
type Store struct {
	scenarios []models.Scenario
}

// NewStore wraps an already loaded scenario list.
func NewStore(scenarios []models.Scenario) *Store {
	cloned := make([]models.Scenario, len(scenarios))
	copy(cloned, scenarios)
	return &Store{scenarios: cloned}
}

// Open loads scenarios from path, or the built-in set when path is empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenarios %s: %w", path, err)
	}
	defer f.Close()
	list, err := LoadAll(f)
	if err != nil {
		return nil, err
	}
	return NewStore(list), nil
}

// Default returns the built-in scenario set.
func Default() (*Store, error) {
	list, err := LoadAll(strings.NewReader(defaultRules))
	if err != nil {
		return nil, err
	}
	return NewStore(list), nil
}

// LoadAll parses a CSV scenario table. rule_secondary, plaintiff_coach and
// defendant_coach are optional columns and may be blank.
func LoadAll(r io.Reader) ([]models.Scenario, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedScenarioError{Field: "rule_title"}
		}
		return nil, fmt.Errorf("read scenario header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &MalformedScenarioError{Field: col}
		}
	}

	var scenarios []models.Scenario
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("read scenario row %d: %w", row, err)
		}
		raw := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		get := func(col string) string {
			return strings.TrimSpace(raw(col))
		}
		// Titles are matched exactly, so keep them as written.
		sc := models.Scenario{
			RuleTitle:      raw("rule_title"),
			RuleContent:    get("rule_content"),
			RuleSecondary:  get("rule_secondary"),
			CaseBackground: get("case_background"),
			Application:    get("application"),
			PlaintiffCoach: get("plaintiff_coach"),
			DefendantCoach: get("defendant_coach"),
		}
		for _, col := range requiredColumns {
			if get(col) == "" {
				return nil, &MalformedScenarioError{Row: row, Field: col}
			}
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// All returns a copy of the scenarios in source order.
func (s *Store) All() []models.Scenario {
	out := make([]models.Scenario, len(s.scenarios))
	copy(out, s.scenarios)
	return out
}

// Titles lists scenario titles in source order.
func (s *Store) Titles() []string {
	titles := make([]string, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		titles = append(titles, sc.RuleTitle)
	}
	return titles
}

// Len reports how many scenarios are loaded.
func (s *Store) Len() int {
	return len(s.scenarios)
}

// ByTitle finds the scenario whose title matches exactly.
func (s *Store) ByTitle(title string) (models.Scenario, error) {
	for _, sc := range s.scenarios {
		if sc.RuleTitle == title {
			return sc, nil
		}
	}
	return models.Scenario{}, fmt.Errorf("%w: %q", ErrScenarioNotFound, title)
}

// ByIndex returns the scenario at position i.
func (s *Store) ByIndex(i int) (models.Scenario, error) {
	if i < 0 || i >= len(s.scenarios) {
		return models.Scenario{}, fmt.Errorf("%w: index %d", ErrScenarioNotFound, i)
	}
	return s.scenarios[i], nil
}

// Resolve looks key up as a title first and then as a decimal index.
func (s *Store) Resolve(key string) (models.Scenario, error) {
	if sc, err := s.ByTitle(key); err == nil {
		return sc, nil
	}
	if i, err := strconv.Atoi(strings.TrimSpace(key)); err == nil {
		return s.ByIndex(i)
	}
	return models.Scenario{}, fmt.Errorf("%w: %q", ErrScenarioNotFound, key)
}
