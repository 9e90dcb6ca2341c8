package models

// ModelDescriptor names one remote model of the summarization pool.
type ModelDescriptor struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// SummaryState is the terminal state of a pipeline run.
type SummaryState string

const (
	SummaryDone     SummaryState = "done"
	SummaryDegraded SummaryState = "degraded"
	SummaryFailed   SummaryState = "failed"
)

type SummaryStats struct {
	RunID           string   `json:"run_id,omitempty"`
	Model           string   `json:"model"`
	Models          []string `json:"models"`
	Chunks          int      `json:"chunks"`
	ProcessedChunks int      `json:"processed_chunks"`
	OriginalLength  int      `json:"original_length"`
	SummaryLength   int      `json:"summary_length"`
	SourceLanguage  string   `json:"source_language"`
	FallbackUsed    bool     `json:"fallback_used"`
	Translated      bool     `json:"translated,omitempty"`
}

// SummaryResult is built once per finished run and not modified afterwards.
type SummaryResult struct {
	Text  string       `json:"text"`
	State SummaryState `json:"state"`
	Stats SummaryStats `json:"stats"`
}

// Degraded reports whether the result is the concatenation of chunk
// summaries because the final aggregation failed.
func (r *SummaryResult) Degraded() bool {
	return r != nil && r.Stats.FallbackUsed
}
