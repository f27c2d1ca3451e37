// Package models defines core data structures for documents, change sets, and job records.
package models

import "time"

// SourceDocument identifies one ingestible unit in the content store.
// Path is the stable logical identifier (slash-separated, relative to the
// store root). Fingerprint is computed lazily on first read and is immutable
// for the remainder of the run.
type SourceDocument struct {
	Path        string    `json:"path"`
	ModifiedAt  time.Time `json:"modified_at"`
	SizeBytes   int64     `json:"size_bytes"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// ChangeSet holds the documents that changed since the last committed run.
// It is created once per run by the change detector and never mutated after.
type ChangeSet struct {
	New      []SourceDocument `json:"new"`
	Modified []SourceDocument `json:"modified"`
	Deleted  []string         `json:"deleted"`
}

// Empty reports whether the change set contains no work at all.
func (c *ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Pending returns the documents that require processing (new plus modified).
func (c *ChangeSet) Pending() []SourceDocument {
	out := make([]SourceDocument, 0, len(c.New)+len(c.Modified))
	out = append(out, c.New...)
	out = append(out, c.Modified...)
	return out
}

// DocumentState is the per-path record kept in persisted state.
type DocumentState struct {
	Fingerprint string    `json:"fingerprint"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// PersistedState is the durable record of what has been processed.
// It is owned by the state store and written exactly once per run, by the
// orchestrator, via atomic commit.
type PersistedState struct {
	LastRunAt time.Time                `json:"last_run_at"`
	Documents map[string]DocumentState `json:"documents"`
}

// NewPersistedState returns an empty state with an allocated document map.
func NewPersistedState() *PersistedState {
	return &PersistedState{Documents: make(map[string]DocumentState)}
}

// Clone returns a deep copy of the state. The orchestrator merges job
// results into a clone so a failed commit never corrupts the loaded state.
func (s *PersistedState) Clone() *PersistedState {
	out := &PersistedState{
		LastRunAt: s.LastRunAt,
		Documents: make(map[string]DocumentState, len(s.Documents)),
	}
	for path, ds := range s.Documents {
		out.Documents[path] = ds
	}
	return out
}
