package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
	"github.com/kirillkom/screen-assistant/internal/core/ports"
)

// GenerationDriver renders the context bundle into a prompt, invokes the
// generation collaborator with a per-call timeout, and validates the answer
// shape. Retries are strictly serial; parallel attempts would double-bill
// the collaborator.
type GenerationDriver struct {
	generator ports.AnswerGenerator

	callTimeout    time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewGenerationDriver(generator ports.AnswerGenerator, callTimeout time.Duration, maxAttempts int) *GenerationDriver {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &GenerationDriver{
		generator:      generator,
		callTimeout:    callTimeout,
		maxAttempts:    maxAttempts,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     2 * time.Second,
	}
}

func (d *GenerationDriver) Generate(ctx context.Context, bundle *domain.ContextBundle) (*domain.GenerationResult, error) {
	prompt := renderPrompt(bundle)
	start := time.Now()

	raw, err := d.generateWithRetry(ctx, prompt)
	if err != nil {
		if domain.IsKind(err, domain.ErrGenerationFormat) {
			return nil, err
		}
		// Per-attempt timeouts carry context.DeadlineExceeded in their
		// chain; only the request's own context decides whether the run
		// ended on a deadline. An exhausted retry budget with a live
		// request context is a collaborator outage.
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrGenerationUnavailable, "generate", err)
	}

	answer := strings.TrimSpace(raw)
	if answer == "" {
		return nil, domain.WrapError(domain.ErrGenerationFormat, "generate", errors.New("empty answer field"))
	}

	return &domain.GenerationResult{
		AnswerText:      answer,
		CitedPassageIDs: citedPassageIDs(answer, bundle),
		Latency:         time.Since(start),
		Truncated:       bundle.Truncated,
	}, nil
}

// generateWithRetry is an explicit bounded retry loop: attempt count and
// backoff are inspected before every retry, and cancellation is checked at
// each retry boundary.
func (d *GenerationDriver) generateWithRetry(parent context.Context, prompt string) (string, error) {
	backoff := d.initialBackoff

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := parent.Err(); err != nil {
			return "", err
		}

		ctx, cancel := context.WithTimeout(parent, d.callTimeout)
		raw, err := d.generator.Generate(ctx, prompt)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if domain.IsKind(err, domain.ErrGenerationFormat) {
			return "", err
		}
		if parent.Err() != nil {
			return "", parent.Err()
		}
		retryable := domain.IsKind(err, domain.ErrTemporary) || errors.Is(err, context.DeadlineExceeded)
		if !retryable || attempt == d.maxAttempts {
			return "", lastErr
		}

		slog.Warn("generation_retry",
			"attempt", attempt,
			"max_attempts", d.maxAttempts,
			"backoff_ms", float64(backoff.Microseconds())/1000.0,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-parent.Done():
			timer.Stop()
			return "", lastErr
		case <-timer.C:
		}
		backoff *= 2
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
	}
	return "", lastErr
}

// renderPrompt numbers the passage excerpts so the model can cite them as
// [n] markers.
func renderPrompt(bundle *domain.ContextBundle) string {
	var b strings.Builder
	b.WriteString("Answer the user's question about the product using only the numbered excerpts below.\n")
	b.WriteString("Cite supporting excerpts inline as [n]. If the excerpts are insufficient, say so directly.\n\n")

	b.WriteString("Question:\n")
	b.WriteString(bundle.Query.RawText)
	b.WriteString("\n")
	if bundle.Query.OCRText != "" {
		b.WriteString("\nText visible on the user's screen:\n")
		b.WriteString(bundle.Query.OCRText)
		b.WriteString("\n")
	}

	b.WriteString("\nExcerpts:\n")
	for i, fp := range bundle.Passages {
		fmt.Fprintf(&b, "[%d] doc=%s\n%s\n\n", i+1, fp.Passage.DocumentID, fp.Passage.Text)
	}
	return b.String()
}

// citedPassageIDs maps [n] markers in the answer back to bundle passage ids.
// Markers that point outside the bundle are dropped; the system never
// surfaces a citation it cannot back with a passage.
func citedPassageIDs(answer string, bundle *domain.ContextBundle) []string {
	seen := make(map[string]struct{}, len(bundle.Passages))
	out := make([]string, 0, len(bundle.Passages))

	for i := 0; i < len(answer); i++ {
		if answer[i] != '[' {
			continue
		}
		end := strings.IndexByte(answer[i:], ']')
		if end <= 1 {
			continue
		}
		n, err := strconv.Atoi(answer[i+1 : i+end])
		if err != nil || n < 1 || n > len(bundle.Passages) {
			continue
		}
		id := bundle.Passages[n-1].Passage.ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
