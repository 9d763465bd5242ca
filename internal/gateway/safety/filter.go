// Package safety classifies inbound messages before any provider call is made.
package safety

import (
	"regexp"

	"interpharma-gateway/internal/models"
)

// RefusalText replaces the provider answer when a message is blocked.
const RefusalText = "I cannot provide diagnoses, prescriptions, or patient-specific recommendations. Please consult a qualified healthcare professional for personalized advice."

// Rule maps one case-insensitive pattern to the category it blocks.
type Rule struct {
	Category models.SafetyCategory
	Pattern  *regexp.Regexp
}

// DefaultRules is evaluated in order; the first match decides the category.
var DefaultRules = []Rule{
	{Category: models.CategoryDiagnosis, Pattern: regexp.MustCompile(`(?i)diagnos`)},
	{Category: models.CategoryPrescription, Pattern: regexp.MustCompile(`(?i)prescrib`)},
	{Category: models.CategoryDosageRequest, Pattern: regexp.MustCompile(`(?i)what should i take`)},
	{Category: models.CategoryDosageRequest, Pattern: regexp.MustCompile(`(?i)should i take`)},
	{Category: models.CategoryEmergency, Pattern: regexp.MustCompile(`(?i)emergency|911|suicide|self harm|poison`)},
	{Category: models.CategoryDosageRequest, Pattern: regexp.MustCompile(`(?i)give me a dose`)},
}

type Filter struct {
	rules []Rule
}

// NewFilter returns a filter over rules, or DefaultRules when none are given.
func NewFilter(rules ...Rule) *Filter {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Filter{rules: rules}
}

// Classify never errors; a message that matches nothing is allowed.
func (f *Filter) Classify(text string) models.SafetyVerdict {
	for _, r := range f.rules {
		if r.Pattern.MatchString(text) {
			return models.SafetyVerdict{
				Allowed:        false,
				ReasonCategory: r.Category,
				Pattern:        r.Pattern.String(),
			}
		}
	}
	return models.SafetyVerdict{Allowed: true}
}
