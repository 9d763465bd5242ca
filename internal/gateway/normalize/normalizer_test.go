package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interpharma-gateway/internal/models"
)

func decode(t *testing.T, body string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestExtractText_FieldOrder(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		want       string
		wantSource string
	}{
		{"chat completion", `{"choices":[{"message":{"role":"assistant","content":"chat answer"}}]}`, "chat answer", "choices.message.content"},
		{"message as string", `{"choices":[{"message":"bare message"}]}`, "bare message", "choices.message.content"},
		{"legacy completion", `{"choices":[{"text":"completion answer"}]}`, "completion answer", "choices.text"},
		{"result field", `{"result":"result answer"}`, "result answer", "result"},
		{"output list", `{"output":[{"content":"output answer"}]}`, "output answer", "output.content"},
		{"generations", `{"generations":[{"text":"generation answer"}]}`, "generation answer", "generations.text"},
		{"outputs list", `{"outputs":[{"content":"outputs answer"}]}`, "outputs answer", "outputs.content"},
		{"top-level text", `{"text":"text answer"}`, "text answer", "text"},
		{"earlier shape wins", `{"result":"first","text":"second"}`, "first", "result"},
		{"empty choice falls through", `{"choices":[{"message":{"content":""}}],"result":"fallback"}`, "fallback", "result"},
		{"unknown shape dumps", `{"answer":"hidden"}`, `{"answer":"hidden"}`, "dump"},
		{"empty choices dumps", `{"choices":[]}`, `{"choices":[]}`, "dump"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := ExtractText(decode(t, tt.body))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestPlain_NeverEmpty(t *testing.T) {
	raws := []interface{}{
		nil,
		"",
		[]byte(nil),
		map[string]interface{}{},
		[]interface{}{1, 2},
		42.0,
		map[string]interface{}{"choices": "not-a-list"},
	}
	for _, raw := range raws {
		answer := Plain(raw)
		assert.Equal(t, models.KindPlain, answer.Kind)
		assert.NotEmpty(t, answer.PlainText, "raw %#v", raw)
		assert.Nil(t, answer.Sections)
	}
}

func TestPlain_StringPassThrough(t *testing.T) {
	answer := Plain("MOCKED LLM RESPONSE:\nhello")
	assert.Equal(t, "MOCKED LLM RESPONSE:\nhello", answer.PlainText)
}

func TestStructured_CommentaryBeforeJSON(t *testing.T) {
	raw := `Sure, here you go: {"overview":"A","key_points":"B","safetyNotes":"C"}`

	answer := Structured(raw)
	require.NotNil(t, answer.Sections)
	assert.Equal(t, models.KindStructured, answer.Kind)
	assert.Equal(t, models.Sections{
		Overview:    "A",
		KeyPoints:   "B",
		SafetyNotes: "C",
	}, *answer.Sections)
}

func TestStructured_Aliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.Sections
	}{
		{
			name: "canonical keys",
			body: `{"overview":"o","keyPoints":"k","safetyNotes":"s","counselingTips":"c","referToDoctor":"r"}`,
			want: models.Sections{Overview: "o", KeyPoints: "k", SafetyNotes: "s", CounselingTips: "c", ReferToDoctor: "r"},
		},
		{
			name: "snake case and short names",
			body: `{"summary":"o","keypoints":"k","safety_notes":"s","counseling_tips":"c","when_to_refer":"r"}`,
			want: models.Sections{Overview: "o", KeyPoints: "k", SafetyNotes: "s", CounselingTips: "c", ReferToDoctor: "r"},
		},
		{
			name: "capitalised overview and short keys",
			body: `{"Overview":"o","safety":"s","counseling":"c","refer":"r"}`,
			want: models.Sections{Overview: "o", SafetyNotes: "s", CounselingTips: "c", ReferToDoctor: "r"},
		},
		{
			name: "empty alias falls through to the next one",
			body: `{"overview":"","summary":"from summary"}`,
			want: models.Sections{Overview: "from summary"},
		},
		{
			name: "arrays join with newlines",
			body: `{"overview":"o","keyPoints":["one","two"],"safetyNotes":[]}`,
			want: models.Sections{Overview: "o", KeyPoints: "one\ntwo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := Structured(tt.body)
			require.NotNil(t, answer.Sections)
			assert.Equal(t, tt.want, *answer.Sections)
		})
	}
}

func TestStructured_FromChatCompletion(t *testing.T) {
	raw := decode(t, `{"choices":[{"message":{"content":"`+
		"```json\\n{\\\"overview\\\":\\\"Paracetamol overview\\\",\\\"referToDoctor\\\":\\\"If fever persists\\\"}\\n```"+
		`"}}]}`)

	answer := Structured(raw)
	require.NotNil(t, answer.Sections)
	assert.Equal(t, "Paracetamol overview", answer.Sections.Overview)
	assert.Equal(t, "If fever persists", answer.Sections.ReferToDoctor)
}

func TestStructured_Degrades(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
	}{
		{"no braces", "Plain prose answer without JSON."},
		{"broken json", `Here: {"overview": "unterminated`},
		{"unknown keys only", `{"answer":"something"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := Structured(tt.raw)
			require.NotNil(t, answer.Sections)
			assert.Equal(t, tt.raw, answer.Sections.Overview)
			assert.Empty(t, answer.Sections.KeyPoints)
			assert.Empty(t, answer.Sections.SafetyNotes)
			assert.Empty(t, answer.Sections.CounselingTips)
			assert.Empty(t, answer.Sections.ReferToDoctor)
		})
	}
}

func TestNormalize_Dispatch(t *testing.T) {
	assert.Equal(t, models.KindPlain, Normalize("x y", models.KindPlain).Kind)
	assert.Equal(t, models.KindStructured, Normalize("x y", models.KindStructured).Kind)
}

func TestInspect_Diagnosis(t *testing.T) {
	tests := []struct {
		name         string
		raw          interface{}
		kind         models.AnswerKind
		wantSource   string
		wantDegraded bool
	}{
		{"plain chat completion", decode(t, `{"choices":[{"message":{"content":"hi"}}]}`), models.KindPlain, "choices.message.content", false},
		{"plain unknown shape", decode(t, `{"answer":"hidden"}`), models.KindPlain, "dump", true},
		{"structured object", `{"overview":"o"}`, models.KindStructured, "string", false},
		{"structured prose", "Plain prose answer.", models.KindStructured, "string", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, d := Inspect(tt.raw, tt.kind)
			assert.Equal(t, tt.kind, answer.Kind)
			assert.Equal(t, tt.wantSource, d.Source)
			assert.Equal(t, tt.wantDegraded, d.Degraded)
			if tt.wantDegraded {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}
