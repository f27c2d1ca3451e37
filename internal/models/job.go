package models

import "time"

// JobStatus is the terminal state of one document job.
type JobStatus string

const (
	// StatusSucceeded means extraction produced acceptable text and all
	// enabled enrichments completed.
	StatusSucceeded JobStatus = "succeeded"
	// StatusPartiallyFailed means extraction produced acceptable text but at
	// least one enrichment was degraded to a missing field.
	StatusPartiallyFailed JobStatus = "partially_failed"
	// StatusFailed means the document could not be read or extraction failed
	// entirely (confidence 0).
	StatusFailed JobStatus = "failed"
)

// JobRecord is produced exactly once per document handled in a run. It is
// owned by the worker processing the document until completion, then handed
// to the orchestrator read-only. Tombstone records mark deleted paths and
// carry no extraction or enrichment.
type JobRecord struct {
	Document   SourceDocument    `json:"document"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
	Enrichment *EnrichmentResult `json:"enrichment,omitempty"`
	Status     JobStatus         `json:"status"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	Tombstone  bool              `json:"tombstone,omitempty"`
}

// RunSummary reports the outcome of one pipeline run.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Started         time.Time     `json:"started"`
	Finished        time.Time     `json:"finished"`
	Duration        time.Duration `json:"duration"`
	Succeeded       int           `json:"succeeded"`
	PartiallyFailed int           `json:"partially_failed"`
	Failed          int           `json:"failed"`
	Deleted         int           `json:"deleted"`
	CostUnits       float64       `json:"cost_units"`
	// StateRecovered is set when the primary state file failed to parse and
	// the backup was used instead.
	StateRecovered bool `json:"state_recovered,omitempty"`
	// StateReset is set when both primary and backup failed to parse and the
	// run proceeded from empty state. Distinct from a first run.
	StateReset bool `json:"state_reset,omitempty"`
}

// Processed returns the total number of documents that went through the
// worker pool, regardless of outcome.
func (r *RunSummary) Processed() int {
	return r.Succeeded + r.PartiallyFailed + r.Failed
}
