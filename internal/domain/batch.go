package domain

import "time"

// BatchJobResult reports the outcome of a batch phase or a whole batch run.
// Item ids are stringified so phases keyed by product, alert or supplier can
// share the structure.
type BatchJobResult struct {
	RunID         string            `json:"run_id"`
	Phase         string            `json:"phase"`
	TotalItems    int               `json:"total_items"`
	SucceededIDs  []string          `json:"succeeded_ids"`
	FailedIDs     []string          `json:"failed_ids"`
	ErrorMessages []string          `json:"error_messages"`
	GeneratedIDs  []string          `json:"generated_ids"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	DurationMs    int64             `json:"duration_ms"`
	Phases        []*BatchJobResult `json:"phases,omitempty"`
}

// SucceededCount returns the number of items that completed successfully.
func (r *BatchJobResult) SucceededCount() int {
	return len(r.SucceededIDs)
}

// FailedCount returns the number of items that failed.
func (r *BatchJobResult) FailedCount() int {
	return len(r.FailedIDs)
}

// Finish stamps the finish time and duration.
func (r *BatchJobResult) Finish() {
	r.FinishedAt = time.Now()
	r.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}
