package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

// Searcher is the sparse retriever over the Postgres full-text index
// maintained by the external indexing pipeline. It only ever reads.
type Searcher struct {
	db *sql.DB
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func NewSearcher(db *sql.DB) *Searcher {
	return &Searcher{db: db}
}

const searchSQL = `
SELECT id, document_id, content, start_offset, end_offset,
       ts_rank_cd(content_tsv, query) AS rank
FROM passages, to_tsquery('simple', $1) AS query
WHERE content_tsv @@ query
ORDER BY rank DESC, id ASC
LIMIT $2`

// RetrieveSparse ranks passages by lexical overlap with the normalized
// query tokens. OCR keywords only widen the candidate set; the distilled
// keyword list keeps raw OCR noise out of the match.
func (s *Searcher) RetrieveSparse(ctx context.Context, query domain.Query, k int) ([]domain.PassageRef, error) {
	tsquery := buildTSQuery(query)
	if tsquery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, searchSQL, tsquery, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []domain.PassageRef
	for rows.Next() {
		var ref domain.PassageRef
		if err := rows.Scan(&ref.ID, &ref.DocumentID, &ref.Text, &ref.StartOffset, &ref.EndOffset, &ref.Score); err != nil {
			return nil, fmt.Errorf("scan lexical row: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical rows: %w", err)
	}
	return out, nil
}

// buildTSQuery ORs all searchable tokens so partial keyword matches still
// rank. User tokens enter as-is; OCR keywords are the supplementary signal
// and only widen the candidate set.
func buildTSQuery(query domain.Query) string {
	terms := make([]string, 0, len(query.Tokens)+len(query.OCRKeywords))
	seen := make(map[string]struct{}, cap(terms))
	appendTerm := func(token string) {
		token = sanitizeToken(token)
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
	}
	for _, token := range query.Tokens {
		appendTerm(token)
	}
	for _, token := range query.OCRKeywords {
		appendTerm(token)
	}
	return strings.Join(terms, " | ")
}

// sanitizeToken strips tsquery syntax characters; tokens arriving here are
// already lowercase alphanumerics, this is a guard at the SQL boundary.
func sanitizeToken(token string) string {
	var b strings.Builder
	for _, r := range token {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
