package state

import "io"

// RunStore handles run history.
type RunStore interface {
	CreateRun(r *Run) error
	UpdateRunState(id, state string) error
	FinishRun(r *Run) error
	LastRun() (*Run, error)
}

// ArtifactStore handles artifact ledger entries.
type ArtifactStore interface {
	PutArtifact(a *Artifact) error
	GetArtifact(key string) (*Artifact, error)
	DeleteArtifact(key string) error
	ListArtifacts(kind ArtifactKind) ([]Artifact, error)
}

// Ledger is the persistence the pipeline depends on.
type Ledger interface {
	io.Closer
	RunStore
	ArtifactStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Ledger        = (*DB)(nil)
	_ RunStore      = (*DB)(nil)
	_ ArtifactStore = (*DB)(nil)
)
