package ingestion

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText(t *testing.T) {
	p := NewProcessor(nil, nil, nil)

	t.Run("short text stays in one chunk", func(t *testing.T) {
		chunks := p.chunkText("a short piece of text")
		require.Len(t, chunks, 1)
	})

	t.Run("empty text yields no chunks", func(t *testing.T) {
		assert.Empty(t, p.chunkText(""))
		assert.Empty(t, p.chunkText("   "))
	})

	t.Run("long text splits with overlap", func(t *testing.T) {
		words := make([]string, 1000)
		for i := range words {
			words[i] = fmt.Sprintf("w%03d", i)
		}
		chunks := p.chunkText(strings.Join(words, " "))
		require.Greater(t, len(chunks), 1)

		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), p.chunkSize)
		}

		// Consecutive chunks share trailing words from the previous one.
		firstWords := strings.Fields(chunks[0])
		secondWords := strings.Fields(chunks[1])
		overlapCount := p.chunkOverlap / 10
		assert.Equal(t, firstWords[len(firstWords)-overlapCount:], secondWords[:overlapCount])
	})
}

func TestCleanHTML(t *testing.T) {
	p := NewProcessor(nil, nil, nil)

	html := `<html><head><title>Fees</title><script>alert(1)</script></head>
		<body><nav>menu</nav><p>Aven   charges no annual fee.</p><footer>legal</footer></body></html>`

	text := p.cleanHTML(html)

	assert.Contains(t, text, "Aven charges no annual fee.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "legal")
}

func TestExtractTitle(t *testing.T) {
	p := NewProcessor(nil, nil, nil)

	assert.Equal(t, "Fees", p.extractTitle("<html><head><title>Fees</title></head><body></body></html>"))
	assert.Equal(t, "Heading", p.extractTitle("<html><body><h1>Heading</h1></body></html>"))
	assert.Equal(t, "Untitled", p.extractTitle("<html><body><p>no title</p></body></html>"))
}

func TestSummarize(t *testing.T) {
	t.Run("short text passes through", func(t *testing.T) {
		assert.Equal(t, "Aven charges no annual fee.", summarize("Aven charges no annual fee."))
	})

	t.Run("multi-byte text is cut on a rune boundary", func(t *testing.T) {
		out := summarize(strings.Repeat("é", 400))
		assert.True(t, utf8.ValidString(out))
		assert.Equal(t, 300, utf8.RuneCountInString(out))
	})
}

func TestExtractSection(t *testing.T) {
	p := NewProcessor(nil, nil, nil)

	tests := []struct {
		url      string
		expected string
	}{
		{"https://aven.com/support/activation", "support"},
		{"https://aven.com/pricing", "pricing"},
		{"https://aven.com/education/heloc-basics", "education"},
		{"https://aven.com/legal/terms", "legal"},
		{"https://aven.com/", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.extractSection(tt.url))
		})
	}
}
