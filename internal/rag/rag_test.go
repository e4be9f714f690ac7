package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"taskcal/internal/models"
	"taskcal/internal/timeparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedGenerator returns its answers in order and records the prompts.
type scriptedGenerator struct {
	answers []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.answers) {
		return g.answers[i], nil
	}
	return "", errors.New("no more answers")
}

type memStore struct {
	docs []*models.Document
}

func (m *memStore) InsertDocuments(ctx context.Context, docs []*models.Document) error {
	m.docs = append(m.docs, docs...)
	return nil
}

func (m *memStore) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	return m.docs, nil
}

func (m *memStore) DeleteDocumentsBySource(ctx context.Context, source string) (int64, error) {
	var kept []*models.Document
	var n int64
	for _, d := range m.docs {
		if d.Source == source {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.docs = kept
	return n, nil
}

// keywordEmbedder maps text onto three axes by keyword.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	t := strings.ToLower(text)
	v := []float32{0, 0, 0}
	if strings.Contains(t, "boiler") {
		v[0] = 1
	}
	if strings.Contains(t, "tap") {
		v[1] = 1
	}
	if strings.Contains(t, "roof") {
		v[2] = 1
	}
	return v, nil
}

func TestEstimateFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{answers: []string{"1 hour and 30 minutes"}}
	p := NewPipeline(discard, gen, nil, Options{})

	est, err := p.Estimate(context.Background(), "  Service my boiler  ")
	require.NoError(t, err)
	assert.Equal(t, "1.30", est.Duration)
	assert.Equal(t, 90, est.Minutes)
	assert.Equal(t, 1, est.Attempts)
	assert.Equal(t, "Service my boiler", est.Request)
	assert.Contains(t, gen.prompts[0], "Service my boiler")
	assert.Contains(t, gen.prompts[0], "between 0.05 and 24.00")
}

func TestEstimateRetriesUntilValid(t *testing.T) {
	gen := &scriptedGenerator{answers: []string{"It depends.", "40 hours", "2 hrs 15 mins"}}
	p := NewPipeline(discard, gen, nil, Options{})

	est, err := p.Estimate(context.Background(), "rewire the house")
	require.NoError(t, err)
	assert.Equal(t, "2.15", est.Duration)
	assert.Equal(t, 3, est.Attempts)
	assert.Equal(t, "2 hrs 15 mins", est.Raw)

	require.Len(t, gen.prompts, 3)
	assert.Contains(t, gen.prompts[1], `"It depends."`)
	assert.Contains(t, gen.prompts[2], `"40 hours"`)
	assert.NotContains(t, gen.prompts[2], `"It depends."`, "only the latest rejection is fed back")
}

func TestEstimateGivesUp(t *testing.T) {
	gen := &scriptedGenerator{answers: []string{"soon", "later", "eventually", "1.00"}}
	p := NewPipeline(discard, gen, nil, Options{})

	_, err := p.Estimate(context.Background(), "paint fence")
	assert.ErrorIs(t, err, ErrNoEstimate)
	assert.ErrorIs(t, err, timeparse.ErrNoDuration)
	assert.Len(t, gen.prompts, 3, "attempts are capped")
}

func TestEstimateRetriesGeneratorErrors(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("connection refused"), nil},
		answers: []string{"", "0.45"},
	}
	p := NewPipeline(discard, gen, nil, Options{MaxAttempts: 2})

	est, err := p.Estimate(context.Background(), "swap a tap washer")
	require.NoError(t, err)
	assert.Equal(t, "0.45", est.Duration)
	assert.Equal(t, 2, est.Attempts)
}

func TestEstimateHonoursBounds(t *testing.T) {
	gen := &scriptedGenerator{answers: []string{"10 minutes", "10 minutes", "10 minutes"}}
	p := NewPipeline(discard, gen, nil, Options{Bounds: timeparse.Bounds{Min: 15 * time.Minute, Max: 4 * time.Hour}})

	_, err := p.Estimate(context.Background(), "quick look")
	assert.ErrorIs(t, err, ErrNoEstimate)
	assert.ErrorIs(t, err, timeparse.ErrOutOfBounds)
}

func TestEstimateEmptyRequest(t *testing.T) {
	p := NewPipeline(discard, &scriptedGenerator{}, nil, Options{})
	_, err := p.Estimate(context.Background(), " \n ")
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestEstimateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{answers: []string{"1.00"}}
	p := NewPipeline(discard, gen, nil, Options{})

	_, err := p.Estimate(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.prompts)
}

func TestEstimateUsesRetrievedContext(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := NewRetriever(discard, store, keywordEmbedder{})

	_, err := r.Ingest(ctx, "boilers.md", "Annual boiler service takes 1.5 hours.")
	require.NoError(t, err)
	_, err = r.Ingest(ctx, "plumbing.md", "A tap washer replacement takes 20 minutes.")
	require.NoError(t, err)

	gen := &scriptedGenerator{answers: []string{"1.30"}}
	p := NewPipeline(discard, gen, r, Options{TopK: 1})

	est, err := p.Estimate(ctx, "My boiler needs its yearly service")
	require.NoError(t, err)
	assert.Equal(t, []string{"boilers.md"}, est.Sources)
	assert.Contains(t, gen.prompts[0], "Annual boiler service")
	assert.NotContains(t, gen.prompts[0], "tap washer")
}

func TestIngestReplacesSource(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := NewRetriever(discard, store, keywordEmbedder{})

	_, err := r.Ingest(ctx, "a.md", "old boiler text")
	require.NoError(t, err)
	n, err := r.Ingest(ctx, "a.md", "new roof text")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.docs, 1)
	assert.Equal(t, "new roof text", store.docs[0].Content)
}

func TestCorrectionTruncatesByRune(t *testing.T) {
	msg := correction(strings.Repeat("é", 300), timeparse.ErrNoDuration)
	assert.True(t, utf8.ValidString(msg))
	assert.Contains(t, msg, strings.Repeat("é", 200)+"...")
	assert.NotContains(t, msg, strings.Repeat("é", 201))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestChunk(t *testing.T) {
	text := "first para\n\nsecond para\n\n\n\nthird"
	assert.Equal(t, []string{"first para\n\nsecond para\n\nthird"}, Chunk(text, 100, 10))
	assert.Equal(t, []string{"first para", "second para", "third"}, Chunk(text, 12, 0))

	long := strings.Repeat("a", 25)
	got := Chunk(long, 10, 2)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 10)
	assert.Len(t, got[2], 9)

	assert.Empty(t, Chunk("   \n\n  ", 10, 0))
}
