package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"courtsim/internal/models"
)

// Party names the side a coaching review is written for.
type Party string

const (
	PartyPlaintiff Party = "Plaintiff"
	PartyDefendant Party = "Defendant"
)

// TemplateRenderError reports a template that could not be rendered, usually
// because a substitution field is blank or absent.
type TemplateRenderError struct {
	Template string
	Field    string
	Err      error
}

func (e *TemplateRenderError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("render %s template: missing field %q", e.Template, e.Field)
	}
	return fmt.Sprintf("render %s template: %v", e.Template, e.Err)
}

func (e *TemplateRenderError) Unwrap() error { return e.Err }

// speaker tags prepended to messages written by another role
var roleTags = map[models.Role]string{
	models.RoleCourt:     "CT: ",
	models.RoleCounsel:   "PC: ",
	models.RoleDefendant: "DC: ",
}

var requiredScenarioFields = []string{"rule_title", "rule_content", "case_background", "application"}

// Composer turns a transcript into the chat turns submitted for each role.
type Composer struct {
	templates Templates
}

// NewComposer builds a composer over the given templates.
func NewComposer(t Templates) *Composer {
	return &Composer{templates: t}
}

// Compose builds the turns for role: the rendered instruction, an optional
// coaching directive, then the history relabelled from role's point of view.
func (c *Composer) Compose(ctx context.Context, role models.Role, history []models.Message, sc models.Scenario, coachingNote string) ([]*schema.Message, error) {
	name, tpl, err := c.instruction(role)
	if err != nil {
		return nil, err
	}
	vs := sc.Fields()
	for _, field := range requiredScenarioFields {
		if v, _ := vs[field].(string); strings.TrimSpace(v) == "" {
			return nil, &TemplateRenderError{Template: name, Field: field}
		}
	}
	instruction, err := render(ctx, name, vs, schema.SystemMessage(tpl))
	if err != nil {
		return nil, err
	}

	turns := make([]*schema.Message, 0, len(instruction)+len(history)+1)
	turns = append(turns, instruction...)
	if strings.TrimSpace(coachingNote) != "" {
		turns = append(turns, schema.SystemMessage(coachingNote))
	}
	for _, msg := range history {
		turns = append(turns, relabel(role, msg))
	}
	return turns, nil
}

// ComposeCostsRuling asks the court for a costs order given the final decision.
func (c *Composer) ComposeCostsRuling(ctx context.Context, history []models.Message) ([]*schema.Message, error) {
	vs, err := transcriptFields("costs", history)
	if err != nil {
		return nil, err
	}
	return render(ctx, "costs", vs,
		schema.SystemMessage(c.templates.CostsSystem),
		schema.UserMessage(c.templates.CostsUser),
	)
}

// ComposeCoaching asks for post-hearing feedback addressed to party.
func (c *Composer) ComposeCoaching(ctx context.Context, history []models.Message, party Party) ([]*schema.Message, error) {
	if party == "" {
		return nil, &TemplateRenderError{Template: "coaching", Field: "party"}
	}
	vs, err := transcriptFields("coaching", history)
	if err != nil {
		return nil, err
	}
	vs["party"] = string(party)
	return render(ctx, "coaching", vs,
		schema.SystemMessage(c.templates.CoachingSystem),
		schema.UserMessage(c.templates.CoachingUser),
	)
}

// Transcript concatenates the contents of msgs with no separator.
func Transcript(msgs []models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
	}
	return b.String()
}

func transcriptFields(name string, history []models.Message) (map[string]any, error) {
	if len(history) == 0 {
		return nil, &TemplateRenderError{Template: name, Field: "decision"}
	}
	last := len(history) - 1
	return map[string]any{
		"transcript": Transcript(history[:last]),
		"decision":   history[last].Content,
	}, nil
}

func (c *Composer) instruction(role models.Role) (string, string, error) {
	switch role {
	case models.RoleCounsel:
		return "counsel", c.templates.Counsel, nil
	case models.RoleCourt:
		return "court", c.templates.Court, nil
	case models.RoleDefendant:
		return "defendant", c.templates.Defendant, nil
	default:
		return "", "", &TemplateRenderError{Template: string(role), Err: fmt.Errorf("unknown role %q", role)}
	}
}

func relabel(role models.Role, msg models.Message) *schema.Message {
	if msg.Role == role {
		return schema.AssistantMessage(msg.Content, nil)
	}
	tag, ok := roleTags[msg.Role]
	if !ok {
		tag = roleTags[models.RoleDefendant]
	}
	return schema.UserMessage(tag + msg.Content)
}

func render(ctx context.Context, name string, vs map[string]any, templates ...schema.MessagesTemplate) ([]*schema.Message, error) {
	out, err := prompt.FromMessages(schema.FString, templates...).Format(ctx, vs)
	if err != nil {
		return nil, &TemplateRenderError{Template: name, Err: err}
	}
	return out, nil
}
