package models

import (
	"time"
)

// SummaryRun is the log record of one pipeline run. It carries metadata
// only; the summary text is never stored.
type SummaryRun struct {
	ID              string       `json:"id"`
	CallerKey       string       `json:"caller_key,omitempty"`
	Source          string       `json:"source"`
	State           SummaryState `json:"state"`
	Model           string       `json:"model"`
	Chunks          int          `json:"chunks"`
	ProcessedChunks int          `json:"processed_chunks"`
	OriginalLength  int          `json:"original_length"`
	SummaryLength   int          `json:"summary_length"`
	SourceLanguage  string       `json:"source_language"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (r *SummaryRun) IsDegraded() bool { return r.State == SummaryDegraded }
func (r *SummaryRun) IsFailed() bool   { return r.State == SummaryFailed }

// NewSummaryRun builds a log record from a finished result.
func NewSummaryRun(id, callerKey, source string, result *SummaryResult) *SummaryRun {
	run := &SummaryRun{
		ID:        id,
		CallerKey: callerKey,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if result == nil {
		run.State = SummaryFailed
		return run
	}
	run.State = result.State
	run.Model = result.Stats.Model
	run.Chunks = result.Stats.Chunks
	run.ProcessedChunks = result.Stats.ProcessedChunks
	run.OriginalLength = result.Stats.OriginalLength
	run.SummaryLength = result.Stats.SummaryLength
	run.SourceLanguage = result.Stats.SourceLanguage
	return run
}

// Feedback is a user's verdict on a summary.
type Feedback struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Model     string    `json:"model"`
	Satisfied bool      `json:"satisfied"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelStat aggregates runs and feedback per model.
type ModelStat struct {
	Model        string `json:"model"`
	Runs         int    `json:"runs"`
	DegradedRuns int    `json:"degraded_runs"`
	FailedRuns   int    `json:"failed_runs"`
	Positive     int    `json:"positive"`
	Negative     int    `json:"negative"`
}

// Satisfaction returns the share of positive feedback, or 0 without feedback.
func (s ModelStat) Satisfaction() float64 {
	total := s.Positive + s.Negative
	if total == 0 {
		return 0
	}
	return float64(s.Positive) / float64(total)
}
