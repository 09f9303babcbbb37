package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/llm"
	"github.com/aven-agent/backend/internal/storage/models"
	"github.com/aven-agent/backend/internal/storage/sqlite"
	"github.com/aven-agent/backend/internal/vector/zilliz"
	"github.com/aven-agent/backend/pkg/logger"
	"github.com/aven-agent/backend/pkg/utils"
)

// Processor ingests crawled support pages into the knowledge base:
// clean HTML, chunk, embed, upsert into the vector store and record
// the document in SQLite.
type Processor struct {
	db           *sqlite.Client
	vectorDB     *zilliz.Client
	llmClient    *llm.Client
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(db *sqlite.Client, vectorDB *zilliz.Client, llmClient *llm.Client) *Processor {
	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		llmClient:    llmClient,
		chunkSize:    1000,
		chunkOverlap: 100,
	}
}

func (p *Processor) ProcessDocument(ctx context.Context, url, htmlContent string) error {
	logger.Info("Processing document", zap.String("url", url))

	cleanedText := p.cleanHTML(htmlContent)
	if cleanedText == "" {
		return fmt.Errorf("no content extracted from HTML")
	}

	section := p.extractSection(url)

	docID := utils.HashString(url)
	doc := &models.Document{
		ID:         docID,
		URL:        url,
		Title:      p.extractTitle(htmlContent),
		Section:    section,
		Summary:    summarize(cleanedText),
		RawContent: cleanedText,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	err := p.db.InsertDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	chunks := p.chunkText(cleanedText)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.llmClient.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	vectorChunks := make([]zilliz.KnowledgeChunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)
		vectorChunks = append(vectorChunks, zilliz.KnowledgeChunk{
			ID:        chunkID,
			Embedding: embeddings[i],
			Text:      chunkText,
			SourceURL: url,
			Timestamp: time.Now(),
		})

		dbChunk := &models.DocumentChunk{
			ID:          chunkID,
			DocID:       docID,
			ChunkIndex:  i,
			Text:        chunkText,
			EmbeddingID: chunkID,
			CreatedAt:   time.Now(),
		}
		if err := p.db.InsertChunk(dbChunk); err != nil {
			logger.Warn("Failed to record chunk", zap.String("chunk_id", chunkID), zap.Error(err))
		}
	}

	if len(vectorChunks) > 0 {
		err = p.vectorDB.Upsert(ctx, vectorChunks)
		if err != nil {
			return fmt.Errorf("failed to upsert into vector DB: %w", err)
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(vectorChunks)),
	)

	return nil
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

func (p *Processor) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	if title == "" {
		title = "Untitled"
	}

	return strings.TrimSpace(title)
}

func (p *Processor) extractSection(url string) string {
	lowerURL := strings.ToLower(url)

	sections := []string{"support", "pricing", "education", "legal", "about", "reviews"}
	for _, s := range sections {
		if strings.Contains(lowerURL, s) {
			return s
		}
	}

	return "general"
}

func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var currentChunk strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && currentChunk.Len() > 0 {
			chunks = append(chunks, currentChunk.String())

			overlapWords := strings.Fields(currentChunk.String())
			overlapStart := max(0, len(overlapWords)-p.chunkOverlap/10)
			currentChunk.Reset()
			currentChunk.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = currentChunk.Len()
		}

		currentChunk.WriteString(word + " ")
		currentSize += wordLen
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	return chunks
}

// summarize keeps the leading characters of the cleaned text, cutting on
// a rune boundary so multi-byte content stays valid UTF-8.
func summarize(text string) string {
	if len(text) <= 300 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= 300 {
		return text
	}
	return string(runes[:300])
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
