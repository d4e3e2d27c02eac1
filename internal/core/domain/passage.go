package domain

import "time"

// PassageRef is a single retrieved passage as produced by one retriever.
// The Score field is scheme-specific (cosine similarity or lexical rank
// weight) and is never compared across retrievers; fusion works on ranks.
type PassageRef struct {
	ID          string  `json:"id"`
	DocumentID  string  `json:"document_id"`
	Text        string  `json:"text"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float64 `json:"score"`
}

// FusedPassage wraps a PassageRef with its per-list ranks and fused score.
// Ranks are 1-based; 0 means the passage was absent from that list.
type FusedPassage struct {
	Passage    PassageRef `json:"passage"`
	DenseRank  int        `json:"dense_rank,omitempty"`
	SparseRank int        `json:"sparse_rank,omitempty"`
	FusedScore float64    `json:"fused_score"`
}

// ContextBundle is the budget-constrained passage selection handed to the
// generation driver. TokenEstimate never exceeds the configured budget.
type ContextBundle struct {
	Query         Query
	Passages      []FusedPassage
	TokenEstimate int
	Truncated     bool
}

// PassageIDs returns the selected passage ids in bundle order.
func (b *ContextBundle) PassageIDs() []string {
	ids := make([]string, 0, len(b.Passages))
	for _, p := range b.Passages {
		ids = append(ids, p.Passage.ID)
	}
	return ids
}

type GenerationResult struct {
	AnswerText      string        `json:"answer_text"`
	CitedPassageIDs []string      `json:"cited_passage_ids"`
	Latency         time.Duration `json:"latency"`
	Truncated       bool          `json:"truncated"`
}

type PipelineStatus string

const (
	PipelineSucceeded PipelineStatus = "succeeded"
	PipelinePartial   PipelineStatus = "partial"
	PipelineFailed    PipelineStatus = "failed"
)

type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageDiagnostic records the outcome of one pipeline stage, in execution
// order, so callers can tell "no relevant content" from a malfunction.
type StageDiagnostic struct {
	Stage   string        `json:"stage"`
	Status  StageStatus   `json:"status"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

type PipelineOutcome struct {
	RequestID   string            `json:"request_id"`
	Status      PipelineStatus    `json:"status"`
	Result      *GenerationResult `json:"result,omitempty"`
	Bundle      *ContextBundle    `json:"-"`
	Diagnostics []StageDiagnostic `json:"diagnostics"`
	Elapsed     time.Duration     `json:"elapsed"`
}
