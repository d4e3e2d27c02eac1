package usecase

import (
	"unicode/utf8"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

// charsPerToken is the crude length heuristic used for budgeting. The exact
// tokenizer of the generation model is not available here; the budget only
// has to be a stable upper bound.
const charsPerToken = 4

// Assembler selects a budget-constrained, non-redundant subset of fused
// passages in fused order. Selection is greedy and deterministic: a rejected
// passage is skipped, never revisited.
type Assembler struct {
	tokenBudget      int
	overlapThreshold float64
}

func NewAssembler(tokenBudget int, overlapThreshold float64) *Assembler {
	if tokenBudget <= 0 {
		tokenBudget = 1024
	}
	if overlapThreshold <= 0 || overlapThreshold > 1 {
		overlapThreshold = 0.8
	}
	return &Assembler{
		tokenBudget:      tokenBudget,
		overlapThreshold: overlapThreshold,
	}
}

func (a *Assembler) Assemble(query domain.Query, fused []domain.FusedPassage) *domain.ContextBundle {
	bundle := &domain.ContextBundle{Query: query}

	selectedGrams := make([]map[string]struct{}, 0, len(fused))
	for _, candidate := range fused {
		cost := estimateTokens(candidate.Passage.Text)
		if bundle.TokenEstimate+cost > a.tokenBudget {
			continue
		}

		grams := trigramSet(candidate.Passage.Text)
		if overlapsAny(grams, selectedGrams, a.overlapThreshold) {
			continue
		}

		bundle.Passages = append(bundle.Passages, candidate)
		bundle.TokenEstimate += cost
		selectedGrams = append(selectedGrams, grams)
	}

	// A single oversized passage must not produce an empty bundle: truncate
	// the best candidate to fit instead.
	if len(bundle.Passages) == 0 && len(fused) > 0 {
		head := fused[0]
		head.Passage.Text = truncateToTokens(head.Passage.Text, a.tokenBudget)
		bundle.Passages = []domain.FusedPassage{head}
		bundle.TokenEstimate = estimateTokens(head.Passage.Text)
		bundle.Truncated = true
	}

	return bundle
}

func estimateTokens(text string) int {
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

func truncateToTokens(text string, budget int) string {
	maxChars := budget * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	truncated := text[:maxChars]
	// Avoid splitting a multi-byte rune at the cut point.
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}

// trigramSet returns the set of word trigrams of text; for texts shorter
// than three tokens the tokens themselves are used.
func trigramSet(text string) map[string]struct{} {
	tokens := splitAlphaNumLower(text)
	out := make(map[string]struct{}, len(tokens))
	if len(tokens) < 3 {
		for _, token := range tokens {
			out[token] = struct{}{}
		}
		return out
	}
	for i := 0; i+3 <= len(tokens); i++ {
		out[tokens[i]+" "+tokens[i+1]+" "+tokens[i+2]] = struct{}{}
	}
	return out
}

func overlapsAny(candidate map[string]struct{}, selected []map[string]struct{}, threshold float64) bool {
	for _, grams := range selected {
		if overlapRatio(candidate, grams) >= threshold {
			return true
		}
	}
	return false
}

// overlapRatio is shared grams over the smaller set, so a passage fully
// contained in an already-selected one scores 1.0.
func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for gram := range small {
		if _, ok := large[gram]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}
