// Package state persists the pipeline's run state with atomic commits and
// backup recovery.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/torikomi/internal/models"
	"go.uber.org/zap"
)

const (
	tmpSuffix    = ".tmp"
	backupSuffix = ".bak"
)

// LoadResult describes how the state was obtained.
type LoadResult struct {
	State *models.PersistedState
	// Recovered is true when the primary file failed to parse and the backup
	// was used instead.
	Recovered bool
	// Reset is true when both primary and backup failed to parse and the
	// returned state is empty. Distinct from FirstRun: a reset causes full
	// reprocessing and must be flagged loudly.
	Reset bool
	// FirstRun is true when no state file has ever been committed.
	FirstRun bool
}

// Store reads and writes the persisted state file. The primary file's prior
// committed version is kept as a .bak sibling.
type Store struct {
	path   string
	logger *zap.Logger // optional; when set, logs recovery events
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for recovery and commit events.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store persisting to path. Parent directories are
// created on first commit.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted state. A corrupt primary falls back to the most
// recent backup; if both are corrupt the returned state is empty with
// Reset=true so the caller can flag full reprocessing.
func (s *Store) Load() (*LoadResult, error) {
	st, err := readStateFile(s.path)
	if err == nil {
		return &LoadResult{State: st}, nil
	}
	if os.IsNotExist(err) {
		// No primary. A leftover backup means a prior commit was interrupted
		// between rename steps; use it rather than treating the vault as new.
		if bak, bakErr := readStateFile(s.path + backupSuffix); bakErr == nil {
			if s.logger != nil {
				s.logger.Warn("state primary missing, recovered from backup", zap.String("path", s.path))
			}
			return &LoadResult{State: bak, Recovered: true}, nil
		}
		return &LoadResult{State: models.NewPersistedState(), FirstRun: true}, nil
	}
	if s.logger != nil {
		s.logger.Warn("state primary unreadable, trying backup", zap.String("path", s.path), zap.Error(err))
	}
	if bak, bakErr := readStateFile(s.path + backupSuffix); bakErr == nil {
		if s.logger != nil {
			s.logger.Warn("state recovered from backup", zap.String("path", s.path+backupSuffix))
		}
		return &LoadResult{State: bak, Recovered: true}, nil
	}
	if s.logger != nil {
		s.logger.Error("state primary and backup both unreadable, proceeding from empty state",
			zap.String("path", s.path))
	}
	return &LoadResult{State: models.NewPersistedState(), Reset: true}, nil
}

// Commit atomically replaces the persisted state: the new state is written to
// a temporary file, the previous primary is preserved as the backup, then the
// temporary file is renamed over the primary. A failure at any step leaves
// the previously committed primary intact.
func (s *Store) Commit(st *models.PersistedState) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + tmpSuffix
	if err := writeFileSync(tmp, data); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	// Preserve the previous committed version before replacing it.
	if _, statErr := os.Stat(s.path); statErr == nil {
		if err := copyFile(s.path, s.path+backupSuffix); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("preserve state backup: %w", err)
		}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("state committed", zap.String("path", s.path), zap.Int("documents", len(st.Documents)))
	}
	return nil
}

func readStateFile(path string) (*models.PersistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st models.PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	if st.Documents == nil {
		st.Documents = make(map[string]models.DocumentState)
	}
	return &st, nil
}

// writeFileSync writes data and fsyncs before closing so a rename that
// follows cannot expose a torn file after a crash.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFileSync(dst, data)
}
