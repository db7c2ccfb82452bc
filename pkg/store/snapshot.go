// Package store implements the versioned export/import codec for a
// project's index state. The blob is a gzip-compressed JSON envelope; the
// entity index and graph metrics are derived data and deliberately not part
// of it, they are rebuilt on import.
package store

import (
	"errors"

	"github.com/helix-research/litgraph/pkg/common"
)

// SchemaVersion is the current envelope schema. Decoders reject anything
// else wholesale; there is no partial import of a mismatched blob.
const SchemaVersion = 1

// ErrSchemaMismatch reports an export blob whose schema version (or shape)
// does not match what this build reads. The importing project is left
// untouched.
var ErrSchemaMismatch = errors.New("snapshot schema mismatch")

// ImportMode selects how a decoded snapshot is applied to existing state.
type ImportMode int

const (
	// ImportReplace discards the project's current state first.
	ImportReplace ImportMode = iota
	// ImportMerge adds the snapshot's documents on top of the current
	// state; documents present in both are superseded by the snapshot.
	ImportMerge
)

// ParseImportMode maps the wire-format mode name onto its ImportMode.
// An empty string means replace.
func ParseImportMode(name string) (ImportMode, error) {
	switch name {
	case "", "replace":
		return ImportReplace, nil
	case "merge":
		return ImportMerge, nil
	default:
		return 0, errors.New("unknown import mode " + name)
	}
}

// Snapshot is the complete exportable state of one project.
type Snapshot struct {
	SchemaVersion int    `json:"schema_version"`
	ProjectID     string `json:"project_id"`

	Documents []common.Document         `json:"documents"`
	Chunks    map[string][]common.Chunk `json:"chunks"`
	Vectors   map[string][]float32      `json:"vectors,omitempty"`
	Graphs    []common.DocumentGraph    `json:"graphs"`
	Included  []string                  `json:"included"`
}
