package disclaimer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsure(t *testing.T) {
	inputs := []string{
		"",
		"Paracetamol is an analgesic.",
		"MOCKED LLM RESPONSE:\nprompt",
		"Already compliant.\n\n" + Text,
		Text + " trailing words",
		"multi\nline\n\ntext",
	}

	for _, in := range inputs {
		once := Ensure(in)
		assert.Equal(t, once, Ensure(once), "Ensure must be idempotent for %q", in)
		assert.Equal(t, 1, Count(once))
	}
}

func TestEnsure_AppendsAfterBlankLine(t *testing.T) {
	assert.Equal(t, "answer\n\n"+Text, Ensure("answer"))
	assert.Equal(t, "ok "+Text, Ensure("ok "+Text))
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "Overview text", Strip("Overview text\n\n"+Text))
	assert.Equal(t, "untouched  ", Strip("untouched  "))
	assert.Equal(t, 0, Count(Strip(Text+"\n"+Text)))
}
