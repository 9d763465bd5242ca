// Package prompt renders persona templates into provider-ready prompts.
// Everything here is pure: the same query and persona always give the same prompt.
package prompt

import (
	"fmt"
	"strings"

	"interpharma-gateway/internal/models"
)

// Prompt is one rendered request. Text is the single-string form used by the
// prompt/input/text payload shapes; System and User feed chat-style endpoints.
type Prompt struct {
	Persona models.Persona
	Kind    models.AnswerKind
	Mode    models.Mode
	Text    string
	System  string
	User    string
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders q with persona. An unknown persona is an error; callers validate
// personas at the edge so this only fires on programming mistakes.
func (b *Builder) Build(q models.Query, persona models.Persona) (Prompt, error) {
	p := Prompt{Persona: persona, Kind: persona.Kind(), Mode: q.Mode}

	switch persona {
	case models.PersonaPharmaChat:
		head := fmt.Sprintf(pharmaChatHead, q.Language)
		p.Text = head + "\nUser message: " + q.Text + "\n\n" + pharmaChatTail
		p.System = head + "\n\n" + pharmaChatTail
		p.User = q.Text

	case models.PersonaDrugInteraction:
		head := fmt.Sprintf(interactionHead, q.Language)
		p.Text = head + "\nQuestion: " + q.Text + "\n\n" + interactionTail
		p.System = head + "\n\n" + interactionTail
		p.User = q.Text

	case models.PersonaReport:
		region := q.Report.Region
		if region == "" {
			region = models.DefaultRegion
		}
		p.Text = fmt.Sprintf(reportTemplate, q.Text, q.Report.Disease, region, q.Report.TimeRange)
		if q.Language != models.DefaultLanguage {
			p.Text += "\nWrite the report in " + q.Language + "."
		}
		p.System = p.Text
		p.User = "Generate the report for: " + q.Text

	case models.PersonaMedicalChat:
		p.System = medicalSystem + "\n\n" + fmt.Sprintf(medicalFormat, q.Mode, q.Language)
		p.User = q.Text
		p.Text = p.System + "\n\nUser: " + q.Text

	default:
		return Prompt{}, fmt.Errorf("unknown persona %q", persona)
	}

	p.Text = strings.TrimSpace(p.Text)
	return p, nil
}
