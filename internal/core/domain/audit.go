package domain

import "time"

// AuditEvent is the compact per-request record published after a pipeline
// run finishes, whatever its status.
type AuditEvent struct {
	EventID     string            `json:"event_id"`
	RequestID   string            `json:"request_id"`
	Status      PipelineStatus    `json:"status"`
	Diagnostics []StageDiagnostic `json:"diagnostics"`
	ElapsedMS   float64           `json:"elapsed_ms"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
