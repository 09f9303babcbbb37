package orchestrator

import (
	"fmt"
	"strings"

	"github.com/aven-agent/backend/internal/retrieval"
	"github.com/aven-agent/backend/internal/search/web"
)

const fragmentPreviewLength = 300

const personaPrompt = `You are a customer support assistant for Aven, a financial technology
company offering a credit card backed by home equity (HELOC).

Response guidelines:
1. Be professional, concise and friendly
2. Answer only using the context provided below
3. Cite source URLs when the context includes them
4. If the answer comes from real-time search rather than the knowledge base, say so
5. Never give personalized financial, legal or tax advice
6. If you are not sure, say you don't know and suggest contacting support@aven.com`

func buildSystemPrompt(fragments []retrieval.Fragment, webResults []web.SearchResult) string {
	var b strings.Builder
	b.WriteString(personaPrompt)

	if len(fragments) > 0 {
		b.WriteString("\n\nKNOWLEDGE BASE CONTEXT:\n")
		for i, f := range fragments {
			b.WriteString(fmt.Sprintf("%d. %s", i+1, preview(f.Text)))
			if f.SourceURL != "" {
				b.WriteString(fmt.Sprintf(" (source: %s)", f.SourceURL))
			}
			b.WriteString("\n")
		}
	}

	if len(webResults) > 0 {
		b.WriteString("\nREAL-TIME SEARCH CONTEXT:\n")
		for i, r := range webResults {
			content := r.Content
			if content == "" {
				content = r.Snippet
			}
			b.WriteString(fmt.Sprintf("%d. %s", i+1, preview(content)))
			if r.URL != "" {
				b.WriteString(fmt.Sprintf(" (source: %s)", r.URL))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func buildUserPrompt(history []Turn, message string) string {
	if len(history) == 0 {
		return message
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, t := range history {
		b.WriteString(fmt.Sprintf("%s: %s\n", t.Role, preview(t.Content)))
	}
	b.WriteString("\nCurrent question: ")
	b.WriteString(message)
	return b.String()
}

// preview truncates on a rune boundary so multi-byte text never yields
// invalid UTF-8 in the prompt.
func preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= fragmentPreviewLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= fragmentPreviewLength {
		return text
	}
	return string(runes[:fragmentPreviewLength]) + "..."
}
