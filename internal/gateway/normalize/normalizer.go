// Package normalize turns untyped provider responses into the gateway's two
// answer shapes. Every function here is total: malformed input degrades, it
// never returns an error.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"interpharma-gateway/internal/models"
)

// extractor reads text from one known response shape.
type extractor struct {
	name    string
	extract func(m map[string]interface{}) string
}

// extractors run in priority order; the first non-empty result wins.
var extractors = []extractor{
	{"choices.message.content", func(m map[string]interface{}) string {
		msg := index(m, "choices", 0, "message")
		if s, ok := msg.(string); ok {
			return s
		}
		return asText(index(msg, "content"))
	}},
	{"choices.text", func(m map[string]interface{}) string { return asText(index(m, "choices", 0, "text")) }},
	{"result", func(m map[string]interface{}) string { return asText(index(m, "result")) }},
	{"output.content", func(m map[string]interface{}) string { return asText(index(m, "output", 0, "content")) }},
	{"generations.text", func(m map[string]interface{}) string { return asText(index(m, "generations", 0, "text")) }},
	{"outputs.content", func(m map[string]interface{}) string { return asText(index(m, "outputs", 0, "content")) }},
	{"text", func(m map[string]interface{}) string { return asText(index(m, "text")) }},
}

// ExtractText returns the answer text inside raw and the field it came from.
// Raw strings pass through; unrecognised structures are dumped as JSON.
func ExtractText(raw interface{}) (string, string) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v, "string"
		}
	case []byte:
		if strings.TrimSpace(string(v)) != "" {
			return string(v), "string"
		}
	case map[string]interface{}:
		for _, p := range extractors {
			if s := p.extract(v); strings.TrimSpace(s) != "" {
				return s, p.name
			}
		}
	}
	return dump(raw), "dump"
}

// Diagnosis reports how an answer was read. Degraded is set when no known
// shape matched and the answer is a dump or an overview-only fallback.
type Diagnosis struct {
	Source   string
	Degraded bool
	Reason   string
}

// Plain normalizes raw into a plain-text answer.
func Plain(raw interface{}) models.NormalizedAnswer {
	answer, _ := plain(raw)
	return answer
}

func plain(raw interface{}) (models.NormalizedAnswer, Diagnosis) {
	text, source := ExtractText(raw)
	d := Diagnosis{Source: source}
	if source == "dump" {
		d.Degraded, d.Reason = true, "no known response field"
	}
	return models.NormalizedAnswer{Kind: models.KindPlain, PlainText: text}, d
}

var sectionAliases = struct {
	overview, keyPoints, safety, counseling, refer []string
}{
	overview:   []string{"overview", "Overview", "summary"},
	keyPoints:  []string{"keyPoints", "key_points", "keypoints"},
	safety:     []string{"safetyNotes", "safety", "safety_notes"},
	counseling: []string{"counselingTips", "counseling", "counseling_tips"},
	refer:      []string{"referToDoctor", "refer", "when_to_refer"},
}

// Structured normalizes raw into the five-section answer. The JSON object is
// read from the first '{' of the extracted text; if that fails, or the object
// carries none of the known keys, the whole text becomes the overview.
func Structured(raw interface{}) models.NormalizedAnswer {
	answer, _ := structured(raw)
	return answer
}

func structured(raw interface{}) (models.NormalizedAnswer, Diagnosis) {
	text, source := ExtractText(raw)
	d := Diagnosis{Source: source}

	sections, ok := parseSections(text)
	if !ok {
		sections = models.Sections{Overview: text}
		d.Degraded, d.Reason = true, "no section object in "+source
	}
	return models.NormalizedAnswer{Kind: models.KindStructured, Sections: &sections}, d
}

// Normalize dispatches on the expected kind.
func Normalize(raw interface{}, kind models.AnswerKind) models.NormalizedAnswer {
	answer, _ := Inspect(raw, kind)
	return answer
}

// Inspect is Normalize plus the Diagnosis of how raw was read.
func Inspect(raw interface{}, kind models.AnswerKind) (models.NormalizedAnswer, Diagnosis) {
	if kind == models.KindStructured {
		return structured(raw)
	}
	return plain(raw)
}

func parseSections(text string) (models.Sections, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return models.Sections{}, false
	}

	// Decode only the first value so trailing commentary or code fences do not
	// invalidate an otherwise well-formed object.
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return models.Sections{}, false
	}

	s := models.Sections{
		Overview:       pick(obj, sectionAliases.overview),
		KeyPoints:      pick(obj, sectionAliases.keyPoints),
		SafetyNotes:    pick(obj, sectionAliases.safety),
		CounselingTips: pick(obj, sectionAliases.counseling),
		ReferToDoctor:  pick(obj, sectionAliases.refer),
	}
	if s == (models.Sections{}) {
		return models.Sections{}, false
	}
	return s, true
}

func pick(obj map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if s := asText(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

// index walks nested maps and slices; any mismatch yields nil.
func index(v interface{}, path ...interface{}) interface{} {
	cur := v
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil
			}
			cur = m[key]
		case int:
			arr, ok := cur.([]interface{})
			if !ok || key >= len(arr) {
				return nil
			}
			cur = arr[key]
		}
	}
	return cur
}

// asText renders a section or field value. Lists join with newlines; objects
// are kept as compact JSON.
func asText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := asText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return dump(val)
	}
}

func dump(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
