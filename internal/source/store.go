// Package source provides read-only access to the content store holding
// ingestible documents and their modification metadata.
package source

import (
	"context"

	"github.com/hyperjump/torikomi/internal/models"
)

// Store is the content store adapter. Implementations are read-only from the
// pipeline's perspective.
type Store interface {
	// List returns every ingestible document with its modification metadata.
	// A listing failure is fatal to the run; implementations must never
	// return a partial listing silently.
	List(ctx context.Context) ([]models.SourceDocument, error)
	// ListNames enumerates document paths without metadata. Cheaper than
	// List; used by the change detector's incremental scan to discover
	// entries a fresh listing cache does not know about.
	ListNames(ctx context.Context) ([]string, error)
	// Stat returns current metadata for a single path. The error satisfies
	// os.IsNotExist when the document is gone.
	Stat(ctx context.Context, path string) (models.SourceDocument, error)
	// Read returns the raw bytes of the document at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// ReadSidecar returns the pre-computed text sidecar for path, if one
	// exists. ok is false when there is no sidecar.
	ReadSidecar(ctx context.Context, path string) (text string, ok bool, err error)
}
