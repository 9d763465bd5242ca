package safety

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"interpharma-gateway/internal/models"
)

func TestFilter_Classify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		allowed  bool
		category models.SafetyCategory
	}{
		{"headache dosage question", "What should I take for a headache?", false, models.CategoryDosageRequest},
		{"should i take variant", "Should I take ibuprofen twice?", false, models.CategoryDosageRequest},
		{"explicit dose", "Give me a dose of morphine", false, models.CategoryDosageRequest},
		{"diagnosis upper case", "Can you DIAGNOSE my rash", false, models.CategoryDiagnosis},
		{"diagnosis noun", "what is the diagnosis here", false, models.CategoryDiagnosis},
		{"prescription", "please prescribe antibiotics", false, models.CategoryPrescription},
		{"emergency number", "should I call 911", false, models.CategoryEmergency},
		{"self harm", "thinking about self harm", false, models.CategoryEmergency},
		{"poisoning", "my child swallowed poison", false, models.CategoryEmergency},
		{"educational question", "What is the mechanism of action of metformin?", true, ""},
		{"schedule question", "Is alprazolam a Schedule H drug in India?", true, ""},
	}

	f := NewFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Classify(tt.text)
			assert.Equal(t, tt.allowed, v.Allowed)
			assert.Equal(t, tt.category, v.ReasonCategory)
			if !tt.allowed {
				assert.NotEmpty(t, v.Pattern)
			}
		})
	}
}

func TestFilter_CustomRules(t *testing.T) {
	f := NewFilter(Rule{Category: models.CategoryEmergency, Pattern: regexp.MustCompile(`(?i)overdose`)})

	assert.False(t, f.Classify("possible OVERDOSE").Allowed)
	assert.True(t, f.Classify("what should i take").Allowed, "custom rules replace the defaults")
}
