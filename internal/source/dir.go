package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/torikomi/internal/models"
)

// sidecarSuffix is appended to a document path to locate its pre-computed
// text sidecar (e.g. "papers/a.pdf" -> "papers/a.pdf.txt").
const sidecarSuffix = ".txt"

// DirStore is a content store backed by a directory tree. Document paths are
// slash-separated and relative to the root.
type DirStore struct {
	root       string
	extensions []string
}

// NewDirStore creates a store over root. extensions filters which files are
// listed (empty = all); sidecar files are never listed as documents of their
// own when they shadow a listed document.
func NewDirStore(root string, extensions []string) (*DirStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}
	return &DirStore{root: absRoot, extensions: extensions}, nil
}

// Root returns the absolute root directory of the store.
func (s *DirStore) Root() string { return s.root }

// List walks the root recursively and returns every regular file whose
// extension is allowed. Sidecars of other listed documents are excluded.
// Returns an error if the walk fails; never a partial silent result.
func (s *DirStore) List(ctx context.Context) ([]models.SourceDocument, error) {
	var docs []models.SourceDocument
	seen := make(map[string]bool)
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(s.extensions) > 0 && !extensionAllowed(ext, s.extensions) {
			return nil
		}
		// Resolve symlinks so only regular files are listed.
		info, statErr := os.Stat(path)
		if statErr != nil || !info.Mode().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		docs = append(docs, models.SourceDocument{
			Path:       rel,
			ModifiedAt: info.ModTime(),
			SizeBytes:  info.Size(),
		})
		seen[rel] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list content store: %w", err)
	}
	docs = dropShadowedSidecars(docs, seen)
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// dropShadowedSidecars removes "<doc>.txt" entries when "<doc>" itself is
// listed; those files are extraction sidecars, not documents.
func dropShadowedSidecars(docs []models.SourceDocument, seen map[string]bool) []models.SourceDocument {
	out := docs[:0]
	for _, d := range docs {
		base := strings.TrimSuffix(d.Path, sidecarSuffix)
		if base != d.Path && seen[base] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ListNames enumerates store-relative paths of allowed files without
// resolving symlinks or collecting metadata. It applies the same
// shadowed-sidecar exclusion as List, so both listings name the same set
// of documents.
func (s *DirStore) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(s.extensions) > 0 && !extensionAllowed(ext, s.extensions) {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		names = append(names, rel)
		seen[rel] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list content store names: %w", err)
	}
	names = dropShadowedSidecarNames(names, seen)
	sort.Strings(names)
	return names, nil
}

func dropShadowedSidecarNames(names []string, seen map[string]bool) []string {
	out := names[:0]
	for _, n := range names {
		base := strings.TrimSuffix(n, sidecarSuffix)
		if base != n && seen[base] {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Stat returns current metadata for a single document. The returned error
// satisfies os.IsNotExist when the document is gone.
func (s *DirStore) Stat(ctx context.Context, path string) (models.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return models.SourceDocument{}, err
	}
	abs, err := s.resolve(path)
	if err != nil {
		return models.SourceDocument{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.SourceDocument{}, err
	}
	if !info.Mode().IsRegular() {
		return models.SourceDocument{}, fmt.Errorf("not a regular file: %s", path)
	}
	return models.SourceDocument{
		Path:       path,
		ModifiedAt: info.ModTime(),
		SizeBytes:  info.Size(),
	}, nil
}

// Read returns the bytes of the document at the store-relative path.
func (s *DirStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ReadSidecar returns the pre-computed text sidecar for path when present.
func (s *DirStore) ReadSidecar(ctx context.Context, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	abs, err := s.resolve(path + sidecarSuffix)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read sidecar for %s: %w", path, err)
	}
	return string(data), true, nil
}

// resolve maps a store-relative path to an absolute one, rejecting escapes
// from the root.
func (s *DirStore) resolve(path string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(path))
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) && abs != s.root {
		return "", fmt.Errorf("path escapes store root: %s", path)
	}
	return abs, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
