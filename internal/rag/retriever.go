package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"taskcal/internal/llm"
	"taskcal/internal/models"
)

// DocumentStore persists embedded chunks.
type DocumentStore interface {
	InsertDocuments(ctx context.Context, docs []*models.Document) error
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	DeleteDocumentsBySource(ctx context.Context, source string) (int64, error)
}

// Match is a retrieved chunk and its cosine similarity to the query.
type Match struct {
	Document *models.Document
	Score    float64
}

// Retriever embeds reference text and finds the chunks closest to a query.
type Retriever struct {
	store     DocumentStore
	embedder  llm.Embedder
	logger    *slog.Logger
	chunkSize int
	overlap   int
}

// NewRetriever creates a Retriever with 1000-rune chunks overlapping by 100.
func NewRetriever(logger *slog.Logger, store DocumentStore, embedder llm.Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder, logger: logger, chunkSize: 1000, overlap: 100}
}

// Ingest replaces everything previously ingested from source with the chunks of text.
func (r *Retriever) Ingest(ctx context.Context, source, text string) (int, error) {
	chunks := Chunk(text, r.chunkSize, r.overlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]*models.Document, 0, len(chunks))
	for i, c := range chunks {
		emb, err := r.embedder.Embed(ctx, c)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %s: %w", i, source, err)
		}
		docs = append(docs, &models.Document{Source: source, Content: c, Embedding: emb})
	}

	removed, err := r.store.DeleteDocumentsBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("failed to remove previous chunks of %s: %w", source, err)
	}
	if err := r.store.InsertDocuments(ctx, docs); err != nil {
		return 0, err
	}
	r.logger.Info("Ingested document", "source", source, "chunks", len(docs), "replaced", removed)
	return len(docs), nil
}

// Retrieve returns the k chunks most similar to query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = 4
	}
	docs, err := r.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	q, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches := make([]Match, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != len(q) {
			r.logger.Warn("Skipping chunk with mismatched embedding size", "id", d.ID, "source", d.Source, "size", len(d.Embedding), "want", len(q))
			continue
		}
		matches = append(matches, Match{Document: d, Score: Cosine(q, d.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at
// most size runes. Paragraphs longer than size are cut into windows that
// overlap by overlap runes.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if n > size {
			flush()
			chunks = append(chunks, window(para, size, overlap)...)
			continue
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+2+n > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

func window(s string, size, overlap int) []string {
	r := []rune(s)
	step := size - overlap
	var out []string
	for start := 0; start < len(r); start += step {
		end := min(start+size, len(r))
		out = append(out, strings.TrimSpace(string(r[start:end])))
		if end == len(r) {
			break
		}
	}
	return out
}
