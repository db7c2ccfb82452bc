package queue

import (
	"github.com/helix-research/litgraph/pkg/engine"
)

// Operations carried on ingest_queue. Every operation mutates one project
// and ends with the project's latest snapshot being rewritten, so FIFO
// consumption keeps the stored index consistent.
const (
	OpIngest  = "ingest"
	OpInclude = "include"
	OpExclude = "exclude"
	OpImport  = "import"
)

// QueueIngestMsg is the ingest_queue message. Documents carries the payload
// for OpIngest; DocumentID addresses OpInclude/OpExclude; SnapshotKey and
// Mode drive OpImport, pointing at a staged blob in S3.
type QueueIngestMsg struct {
	Message       string                `json:"message"`
	ProjectID     string                `json:"project_id"`
	CorrelationID string                `json:"correlation_id,omitempty"`
	Operation     string                `json:"operation"`
	Documents     []engine.IngestParams `json:"documents,omitempty"`
	DocumentID    string                `json:"document_id,omitempty"`
	SnapshotKey   string                `json:"snapshot_key,omitempty"`
	Mode          string                `json:"mode,omitempty"`
}

// QueueDeleteMsg is the delete_queue message. An empty DocumentID deletes
// the whole project.
type QueueDeleteMsg struct {
	Message       string `json:"message"`
	ProjectID     string `json:"project_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	DocumentID    string `json:"document_id,omitempty"`
}
