package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/aven-agent/backend/internal/retrieval"
)

func TestPreview(t *testing.T) {
	t.Run("short text passes through", func(t *testing.T) {
		assert.Equal(t, "no annual fee", preview("  no annual fee  "))
	})

	t.Run("long text is truncated with ellipsis", func(t *testing.T) {
		out := preview(strings.Repeat("a", 500))
		assert.Len(t, out, fragmentPreviewLength+3)
		assert.True(t, strings.HasSuffix(out, "..."))
	})

	t.Run("multi-byte text stays valid utf-8", func(t *testing.T) {
		out := preview(strings.Repeat("é", 400))
		assert.True(t, utf8.ValidString(out))
		assert.Equal(t, fragmentPreviewLength, utf8.RuneCountInString(out)-3)
	})
}

func TestBuildSystemPrompt_MultiByteFragment(t *testing.T) {
	fragments := []retrieval.Fragment{{
		Text:      strings.Repeat("ü", 400),
		SourceURL: "https://example.com/a",
		Score:     0.9,
	}}

	prompt := buildSystemPrompt(fragments, nil)

	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "KNOWLEDGE BASE CONTEXT")
	assert.Contains(t, prompt, "(source: https://example.com/a)")
}
