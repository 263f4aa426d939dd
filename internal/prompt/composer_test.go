package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtsim/internal/models"
)

func testScenario() models.Scenario {
	return models.Scenario{
		RuleTitle:      "Extension of time",
		RuleContent:    "The Court may extend time.",
		CaseBackground: "Defence filed late.",
		Application:    "Defendant seeks an extension.",
		PlaintiffCoach: "Press on prejudice.",
	}
}

func TestComposeRelabelsHistoryForRole(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	history := []models.Message{
		{Role: models.RoleCourt, Content: "A"},
		{Role: models.RoleCounsel, Content: "B"},
	}

	turns, err := c.Compose(context.Background(), models.RoleCounsel, history, testScenario(), "")
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, schema.System, turns[0].Role)
	assert.Contains(t, turns[0].Content, "You are counsel for the plaintiff")
	assert.Contains(t, turns[0].Content, "These are the rules regarding Extension of time.")
	assert.Contains(t, turns[0].Content, "Application: Defendant seeks an extension.")

	assert.Equal(t, schema.User, turns[1].Role)
	assert.Equal(t, "CT: A", turns[1].Content)
	assert.Equal(t, schema.Assistant, turns[2].Role)
	assert.Equal(t, "B", turns[2].Content)
}

func TestComposeSameTranscriptDiffersByRole(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	history := []models.Message{
		{Role: models.RoleCourt, Content: "Begin. [PC]"},
		{Role: models.RoleCounsel, Content: "May it please the court."},
		{Role: models.RoleDefendant, Content: "We object."},
	}

	court, err := c.Compose(context.Background(), models.RoleCourt, history, testScenario(), "")
	require.NoError(t, err)
	assert.Contains(t, court[0].Content, "assistant registrar")
	assert.Equal(t, schema.Assistant, court[1].Role)
	assert.Equal(t, "Begin. [PC]", court[1].Content)
	assert.Equal(t, "PC: May it please the court.", court[2].Content)
	assert.Equal(t, "DC: We object.", court[3].Content)

	defendant, err := c.Compose(context.Background(), models.RoleDefendant, history, testScenario(), "")
	require.NoError(t, err)
	assert.Contains(t, defendant[0].Content, "You are counsel for the defendant")
	assert.Equal(t, "CT: Begin. [PC]", defendant[1].Content)
	assert.Equal(t, "PC: May it please the court.", defendant[2].Content)
	assert.Equal(t, schema.Assistant, defendant[3].Role)
	assert.Equal(t, "We object.", defendant[3].Content)
}

func TestComposeInjectsCoachingNoteAfterInstruction(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	history := []models.Message{{Role: models.RoleCourt, Content: "Go. [PC]"}}

	turns, err := c.Compose(context.Background(), models.RoleCounsel, history, testScenario(), "Press on prejudice.")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, schema.System, turns[1].Role)
	assert.Equal(t, "Press on prejudice.", turns[1].Content)
	assert.Equal(t, "CT: Go. [PC]", turns[2].Content)

	turns, err = c.Compose(context.Background(), models.RoleCounsel, history, testScenario(), "   ")
	require.NoError(t, err)
	assert.Len(t, turns, 2, "blank notes are not injected")
}

func TestComposeMissingScenarioField(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	sc := testScenario()
	sc.Application = ""

	_, err := c.Compose(context.Background(), models.RoleCourt, nil, sc, "")
	var renderErr *TemplateRenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "application", renderErr.Field)
	assert.Equal(t, "court", renderErr.Template)
}

func TestComposeOptionalSecondaryRule(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	sc := testScenario()
	sc.RuleSecondary = "Delay, reasons, merits and prejudice are weighed."

	turns, err := c.Compose(context.Background(), models.RoleCourt, nil, sc, "")
	require.NoError(t, err)
	assert.Contains(t, turns[0].Content, sc.RuleSecondary)
}

func TestComposeUnknownRole(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	_, err := c.Compose(context.Background(), models.Role("bailiff"), nil, testScenario(), "")
	var renderErr *TemplateRenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestComposeCostsRulingTranscript(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	history := []models.Message{
		{Role: models.RoleCourt, Content: "Begin. [PC]"},
		{Role: models.RoleCounsel, Content: "Argument one."},
		{Role: models.RoleDefendant, Content: "Reply."},
		{Role: models.RoleCourt, Content: "Application allowed. [END]"},
	}

	turns, err := c.ComposeCostsRuling(context.Background(), history)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, schema.System, turns[0].Role)
	assert.Contains(t, turns[0].Content, "render a decision on costs")
	assert.Equal(t, schema.User, turns[1].Role)
	assert.Equal(t,
		"This is a transcript of the arguments in the hearing:\nBegin. [PC]Argument one.Reply.\n\n"+
			"This is the decision made by the court:\nApplication allowed. [END]\n",
		turns[1].Content)
}

func TestTranscriptHasNoSeparators(t *testing.T) {
	msgs := []models.Message{{Content: "a"}, {Content: "b "}, {Content: "c"}}
	assert.Equal(t, "ab c", Transcript(msgs))
	assert.Equal(t, "", Transcript(nil))
}

func TestComposeCostsRulingEmptyHistory(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	_, err := c.ComposeCostsRuling(context.Background(), nil)
	var renderErr *TemplateRenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "decision", renderErr.Field)
}

func TestComposeCoachingNamesParty(t *testing.T) {
	c := NewComposer(DefaultTemplates())
	history := []models.Message{
		{Role: models.RoleCounsel, Content: "X"},
		{Role: models.RoleCourt, Content: "Dismissed. [END]"},
	}

	for _, party := range []Party{PartyPlaintiff, PartyDefendant} {
		turns, err := c.ComposeCoaching(context.Background(), history, party)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Contains(t, turns[0].Content, "coach counsel for the "+string(party))
		assert.True(t, strings.HasPrefix(turns[1].Content, "This is a transcript of the arguments in the hearing:\nX\n"))
	}

	_, err := c.ComposeCoaching(context.Background(), history, "")
	assert.Error(t, err)
}
