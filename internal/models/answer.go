// internal/models/answer.go
package models

type SafetyCategory string

const (
	CategoryDiagnosis     SafetyCategory = "diagnosis"
	CategoryPrescription  SafetyCategory = "prescription"
	CategoryDosageRequest SafetyCategory = "dosage-request"
	CategoryEmergency     SafetyCategory = "emergency"
)

type SafetyVerdict struct {
	Allowed        bool           `json:"allowed"`
	ReasonCategory SafetyCategory `json:"reasonCategory,omitempty"`
	Pattern        string         `json:"-"`
}

type AnswerKind string

const (
	KindPlain      AnswerKind = "plain"
	KindStructured AnswerKind = "structured"
)

// ModelLabel records where an answer came from.
type ModelLabel string

const (
	LabelSafety   ModelLabel = "safety"
	LabelMock     ModelLabel = "mock"
	LabelProvider ModelLabel = "provider"
)

// Sections is the five-part structured medical summary.
type Sections struct {
	Overview       string `json:"overview"`
	KeyPoints      string `json:"keyPoints"`
	SafetyNotes    string `json:"safety"`
	CounselingTips string `json:"counseling"`
	ReferToDoctor  string `json:"refer"`
}

// NormalizedAnswer has PlainText set for KindPlain and Sections set for KindStructured.
type NormalizedAnswer struct {
	Kind      AnswerKind `json:"kind"`
	PlainText string     `json:"plainText,omitempty"`
	Sections  *Sections  `json:"sections,omitempty"`
}

// FinalAnswer is what leaves the gateway. Plain answers carry the disclaimer
// inside PlainText; structured answers carry it in Disclaimer.
type FinalAnswer struct {
	NormalizedAnswer
	Disclaimer string     `json:"disclaimer,omitempty"`
	ModelLabel ModelLabel `json:"model"`
	Cached     bool       `json:"cached,omitempty"`
}

// State is a step of the per-request pipeline.
type State string

const (
	StateReceived    State = "Received"
	StateFiltering   State = "Filtering"
	StateBlocked     State = "Blocked"
	StatePrompting   State = "Prompting"
	StateCalling     State = "Calling"
	StateNormalizing State = "Normalizing"
	StateFinalizing  State = "Finalizing"
	StateResponded   State = "Responded"
	StateRateLimited State = "RateLimited"
)
