// Package rag estimates how long a customer request will take by grounding a
// language model in reference documents and normalizing its answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskcal/internal/llm"
	"taskcal/internal/models"
	"taskcal/internal/timeparse"
)

var (
	// ErrEmptyRequest is returned for a blank customer request.
	ErrEmptyRequest = errors.New("request is empty")
	// ErrNoEstimate is returned when every attempt produced an unusable answer.
	ErrNoEstimate = errors.New("no valid estimate")
)

// Searcher finds context for a request.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) ([]Match, error)
}

// Options tunes a Pipeline.
type Options struct {
	Bounds      timeparse.Bounds
	MaxAttempts int
	TopK        int
}

// Pipeline runs retrieval, generation and validation.
type Pipeline struct {
	logger   *slog.Logger
	gen      llm.Generator
	searcher Searcher
	opts     Options
}

// NewPipeline creates a Pipeline. searcher may be nil, in which case the
// model is asked without reference context.
func NewPipeline(logger *slog.Logger, gen llm.Generator, searcher Searcher, opts Options) *Pipeline {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.Bounds == (timeparse.Bounds{}) {
		opts.Bounds = timeparse.DefaultBounds
	}
	return &Pipeline{logger: logger, gen: gen, searcher: searcher, opts: opts}
}

// Estimate asks the model how long request will take and returns the answer
// normalized to H.MM. Answers that do not parse or fall outside the bounds
// are retried with a corrective instruction, up to MaxAttempts model calls.
func (p *Pipeline) Estimate(ctx context.Context, request string) (*models.Estimate, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, ErrEmptyRequest
	}

	contextText, sources := p.lookup(ctx, request)
	base := buildPrompt(contextText, request, p.opts.Bounds)

	var lastErr error
	var raw string
	prompt := base
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		answer, err := p.gen.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Estimate generation failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		raw = answer

		formatted, d, err := timeparse.Normalize(answer, p.opts.Bounds)
		if err != nil {
			p.logger.Debug("Rejected model answer", "attempt", attempt, "answer", answer, "error", err)
			lastErr = err
			prompt = base + "\n\n" + correction(answer, err)
			continue
		}

		p.logger.Info("Estimated request duration", "duration", formatted, "attempts", attempt)
		return &models.Estimate{
			Request:   request,
			Duration:  formatted,
			Minutes:   d.Minutes,
			Raw:       raw,
			Attempts:  attempt,
			Sources:   sources,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrNoEstimate, p.opts.MaxAttempts, lastErr)
}

// lookup retrieves reference text. Retrieval failures degrade to an
// ungrounded prompt.
func (p *Pipeline) lookup(ctx context.Context, request string) (string, []string) {
	if p.searcher == nil {
		return "", nil
	}
	matches, err := p.searcher.Retrieve(ctx, request, p.opts.TopK)
	if err != nil {
		p.logger.Warn("Context retrieval failed, estimating without it", "error", err)
		return "", nil
	}

	var b strings.Builder
	var sources []string
	seen := map[string]bool{}
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Document.Content)
		b.WriteString("\n")
		if !seen[m.Document.Source] {
			seen[m.Document.Source] = true
			sources = append(sources, m.Document.Source)
		}
	}
	return b.String(), sources
}

func buildPrompt(contextText, request string, b timeparse.Bounds) string {
	var sb strings.Builder
	sb.WriteString("You estimate how long service tasks take so they can be scheduled.\n")
	if contextText != "" {
		sb.WriteString("\nReference information:\n")
		sb.WriteString(contextText)
	}
	sb.WriteString("\nCustomer request:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nReply with only the estimated duration in H.MM format, where H is hours and MM is minutes ")
	sb.WriteString("(for example 1.30 means one hour thirty minutes, 0.45 means forty-five minutes). ")
	if b.Max > 0 {
		fmt.Fprintf(&sb, "The estimate must be between %s and %s.", timeparse.FromStd(b.Min).Format(), timeparse.FromStd(b.Max).Format())
	} else {
		fmt.Fprintf(&sb, "The estimate must be at least %s.", timeparse.FromStd(b.Min).Format())
	}
	return sb.String()
}

func correction(answer string, err error) string {
	if r := []rune(answer); len(r) > 200 {
		answer = string(r[:200]) + "..."
	}
	return fmt.Sprintf("Your previous answer %q was rejected (%v). Reply with a single H.MM value and nothing else.", answer, err)
}
