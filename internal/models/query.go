// internal/models/query.go
package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type Mode string

const (
	ModeStudent         Mode = "Student"
	ModePharmacist      Mode = "Pharmacist"
	ModePatientFriendly Mode = "Patient-Friendly"
)

// Modes lists the accepted modes in display order.
var Modes = []Mode{ModeStudent, ModePharmacist, ModePatientFriendly}

func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Persona selects the prompt template and the expected answer kind.
type Persona string

const (
	PersonaPharmaChat      Persona = "pharma-chat"
	PersonaReport          Persona = "report"
	PersonaDrugInteraction Persona = "drug-interaction"
	PersonaMedicalChat     Persona = "medical-chat"
)

// Kind reports the answer shape the persona expects.
func (p Persona) Kind() AnswerKind {
	if p == PersonaMedicalChat {
		return KindStructured
	}
	return KindPlain
}

func (p Persona) Valid() bool {
	switch p {
	case PersonaPharmaChat, PersonaReport, PersonaDrugInteraction, PersonaMedicalChat:
		return true
	}
	return false
}

const (
	DefaultLanguage = "en"
	DefaultRegion   = "global"
	minMessageRunes = 2
)

// ReportDetails carries the extra inputs of the report persona.
type ReportDetails struct {
	Disease   string `json:"disease,omitempty"`
	Region    string `json:"region,omitempty"`
	TimeRange string `json:"timeRange,omitempty"`
}

// Query is one inbound request. Build it with NewQuery; it is not modified afterwards.
type Query struct {
	Text     string        `json:"message"`
	Mode     Mode          `json:"mode"`
	Language string        `json:"language"`
	Report   ReportDetails `json:"report,omitempty"`
}

// NewQuery trims and validates the raw fields, applying the Student and "en" defaults.
func NewQuery(message, mode, language string) (Query, error) {
	text := strings.TrimSpace(message)
	if text == "" {
		return Query{}, fmt.Errorf("message is required")
	}
	if utf8.RuneCountInString(text) < minMessageRunes {
		return Query{}, fmt.Errorf("message must be at least %d characters", minMessageRunes)
	}

	m := Mode(strings.TrimSpace(mode))
	if m == "" {
		m = ModeStudent
	}
	if !m.Valid() {
		return Query{}, fmt.Errorf("invalid mode %q", mode)
	}

	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = DefaultLanguage
	}

	return Query{Text: text, Mode: m, Language: lang}, nil
}

// WithReport returns a copy of q carrying report inputs; an empty region becomes "global".
func (q Query) WithReport(details ReportDetails) Query {
	details.Disease = strings.TrimSpace(details.Disease)
	details.TimeRange = strings.TrimSpace(details.TimeRange)
	details.Region = strings.TrimSpace(details.Region)
	if details.Region == "" {
		details.Region = DefaultRegion
	}
	q.Report = details
	return q
}

// ScreenText is everything the user supplied that reaches a prompt, one input
// per line. The safety filter classifies this rather than Text alone.
func (q Query) ScreenText() string {
	parts := []string{q.Text}
	for _, field := range []string{q.Report.Disease, q.Report.Region, q.Report.TimeRange} {
		if field != "" {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, "\n")
}
