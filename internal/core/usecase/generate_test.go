package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

type generatorFake struct {
	calls   int
	answers []string
	errs    []error
}

func (f *generatorFake) Generate(_ context.Context, _ string) (string, error) {
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(f.answers) {
		return f.answers[idx], nil
	}
	return "answer", nil
}

func testBundle(texts ...string) *domain.ContextBundle {
	bundle := &domain.ContextBundle{Query: domain.Query{RawText: "how do I reset my password"}}
	for i, text := range texts {
		bundle.Passages = append(bundle.Passages, domain.FusedPassage{
			Passage: domain.PassageRef{
				ID:         "p" + string(rune('1'+i)),
				DocumentID: "doc",
				Text:       text,
			},
		})
	}
	return bundle
}

func temporaryErr() error {
	return domain.WrapError(domain.ErrTemporary, "generate", errors.New("timeout"))
}

func TestGenerateRetriesTransientFailuresThenSucceeds(t *testing.T) {
	fake := &generatorFake{
		errs:    []error{temporaryErr(), temporaryErr(), nil},
		answers: []string{"", "", "see settings [1]"},
	}
	driver := NewGenerationDriver(fake, time.Second, 3)
	driver.initialBackoff = time.Millisecond

	result, err := driver.Generate(context.Background(), testBundle("passage one"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls)
	}
	if result.AnswerText != "see settings [1]" {
		t.Fatalf("unexpected answer: %s", result.AnswerText)
	}
}

func TestGenerateExhaustsRetriesWithUnavailableError(t *testing.T) {
	fake := &generatorFake{
		errs: []error{temporaryErr(), temporaryErr(), temporaryErr()},
	}
	driver := NewGenerationDriver(fake, time.Second, 3)
	driver.initialBackoff = time.Millisecond

	_, err := driver.Generate(context.Background(), testBundle("passage one"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", fake.calls)
	}
}

func TestGenerateExhaustedAttemptTimeoutsAreUnavailable(t *testing.T) {
	attemptTimeout := domain.WrapError(domain.ErrTemporary, "generate", context.DeadlineExceeded)
	fake := &generatorFake{
		errs: []error{attemptTimeout, attemptTimeout, attemptTimeout},
	}
	driver := NewGenerationDriver(fake, time.Second, 3)
	driver.initialBackoff = time.Millisecond

	_, err := driver.Generate(context.Background(), testBundle("passage one"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable for exhausted attempt timeouts, got %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", fake.calls)
	}
}

func TestGenerateDoesNotRetryFormatErrors(t *testing.T) {
	formatErr := domain.WrapError(domain.ErrGenerationFormat, "generate", errors.New("missing answer"))
	fake := &generatorFake{errs: []error{formatErr}}
	driver := NewGenerationDriver(fake, time.Second, 5)

	_, err := driver.Generate(context.Background(), testBundle("passage one"))
	if !domain.IsKind(err, domain.ErrGenerationFormat) {
		t.Fatalf("expected ErrGenerationFormat, got %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", fake.calls)
	}
}

func TestGenerateEmptyAnswerIsFormatError(t *testing.T) {
	fake := &generatorFake{answers: []string{"   "}}
	driver := NewGenerationDriver(fake, time.Second, 1)

	_, err := driver.Generate(context.Background(), testBundle("passage one"))
	if !domain.IsKind(err, domain.ErrGenerationFormat) {
		t.Fatalf("expected ErrGenerationFormat for blank answer, got %v", err)
	}
}

func TestGenerateDropsCitationsOutsideBundle(t *testing.T) {
	fake := &generatorFake{answers: []string{"open settings [1], then [7] and follow [2] again [1]"}}
	driver := NewGenerationDriver(fake, time.Second, 1)

	result, err := driver.Generate(context.Background(), testBundle("first", "second"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []string{"p1", "p2"}
	if len(result.CitedPassageIDs) != len(want) {
		t.Fatalf("expected citations %v, got %v", want, result.CitedPassageIDs)
	}
	for i := range want {
		if result.CitedPassageIDs[i] != want[i] {
			t.Fatalf("expected citations %v, got %v", want, result.CitedPassageIDs)
		}
	}
}

func TestRenderPromptNumbersExcerptsAndMarksScreenText(t *testing.T) {
	bundle := testBundle("reset from the account page", "contact support")
	bundle.Query.OCRText = "Settings > Security"

	prompt := renderPrompt(bundle)
	for _, want := range []string{"[1]", "[2]", "reset from the account page", "Settings > Security", "how do I reset my password"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGeneratePropagatesBundleTruncation(t *testing.T) {
	fake := &generatorFake{answers: []string{"partial context answer"}}
	driver := NewGenerationDriver(fake, time.Second, 1)

	bundle := testBundle("truncated passage")
	bundle.Truncated = true
	result, err := driver.Generate(context.Background(), bundle)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !result.Truncated {
		t.Fatalf("expected truncated flag carried into result")
	}
}
