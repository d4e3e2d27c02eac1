package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
	"github.com/kirillkom/screen-assistant/internal/core/ports"
)

const defaultMaxQueryChars = 10000

// Normalizer merges raw user text and optional OCR text into the immutable
// Query handed to the retrievers. An embedding failure does not fail
// normalization; it only disables the dense path.
type Normalizer struct {
	embedder      ports.Embedder
	maxQueryChars int
	maxOCRTokens  int
}

func NewNormalizer(embedder ports.Embedder, maxQueryChars, maxOCRTokens int) *Normalizer {
	if maxQueryChars <= 0 {
		maxQueryChars = defaultMaxQueryChars
	}
	if maxOCRTokens <= 0 {
		maxOCRTokens = 24
	}
	return &Normalizer{
		embedder:      embedder,
		maxQueryChars: maxQueryChars,
		maxOCRTokens:  maxOCRTokens,
	}
}

func (n *Normalizer) Normalize(ctx context.Context, rawText, ocrText string) (domain.Query, error) {
	rawText = strings.TrimSpace(rawText)
	ocrText = strings.TrimSpace(ocrText)

	if rawText == "" && ocrText == "" {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidQuery, "normalize", errors.New("empty question and no ocr text"))
	}
	if utf8.RuneCountInString(rawText) > n.maxQueryChars {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidQuery, "normalize", errors.New("question exceeds length limit"))
	}

	query := domain.Query{
		RawText:     rawText,
		OCRText:     ocrText,
		Tokens:      splitAlphaNumLower(rawText),
		OCRKeywords: extractKeywords(ocrText, n.maxOCRTokens),
	}

	embedding, err := n.embedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Query{}, ctx.Err()
		}
		slog.Warn("dense_path_disabled", "reason", "embedding unavailable", "error", err)
		query.DenseDisabled = true
		return query, nil
	}
	query.Embedding = embedding
	return query, nil
}

// embedQuery embeds the user text with OCR context appended in a clearly
// demarcated block, mirroring the prompt-side rendering.
func (n *Normalizer) embedQuery(ctx context.Context, query domain.Query) ([]float32, error) {
	text := query.RawText
	if text == "" {
		text = query.OCRText
	} else if query.OCRText != "" {
		text = text + "\n[screen text] " + query.OCRText
	}

	embedding, err := n.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, errors.New("empty embedding")
	}
	for _, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, errors.New("non-finite embedding value")
		}
	}
	return embedding, nil
}

// extractKeywords distills OCR output into its most frequent non-stopword
// tokens. Raw OCR is noisy; feeding all of it to the sparse path at full
// weight drowns the actual question.
func extractKeywords(text string, limit int) []string {
	tokens := splitAlphaNumLower(text)
	if len(tokens) == 0 {
		return nil
	}

	type tokenCount struct {
		token string
		count int
		first int
	}
	seen := make(map[string]*tokenCount, len(tokens))
	order := make([]*tokenCount, 0, len(tokens))
	for i, token := range tokens {
		if len(token) < 2 || stopwords[token] {
			continue
		}
		if tc, ok := seen[token]; ok {
			tc.count++
			continue
		}
		tc := &tokenCount{token: token, count: 1, first: i}
		seen[token] = tc
		order = append(order, tc)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})
	if len(order) > limit {
		order = order[:limit]
	}

	out := make([]string, 0, len(order))
	for _, tc := range order {
		out = append(out, tc.token)
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "do": true, "for": true, "from": true, "how": true,
	"i": true, "in": true, "is": true, "it": true, "my": true, "of": true,
	"on": true, "or": true, "the": true, "this": true, "to": true, "was": true,
	"what": true, "when": true, "where": true, "with": true, "you": true,
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
