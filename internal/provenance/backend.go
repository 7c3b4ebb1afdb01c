package provenance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("provenance record not found")

	// ErrUnknownBackend is returned for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown provenance backend")
)

// Kind is the record type stored in a backend
type Kind string

const (
	KindEntity   Kind = "entity"
	KindActivity Kind = "activity"
	KindAgent    Kind = "agent"
)

// Backend stores encoded provenance records keyed by (kind, id). Put
// replaces any existing record wholesale and is safe to retry.
type Backend interface {
	Put(ctx context.Context, kind Kind, id string, data []byte) error
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)
	List(ctx context.Context, kind Kind) ([][]byte, error)
	Close() error
}

// OpenBackend selects and opens the configured backend
func OpenBackend(cfg model.ProvenanceConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "badger":
		return OpenBadgerBackend(cfg.Path, false, logger)
	case "sqlite":
		return OpenSQLiteBackend(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
