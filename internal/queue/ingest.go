package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/helix-research/litgraph/internal/storage"
	"github.com/helix-research/litgraph/pkg/engine"
	"github.com/helix-research/litgraph/pkg/leaselock"
	"github.com/helix-research/litgraph/pkg/logger"
	"github.com/helix-research/litgraph/pkg/store"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessIngestMessage handles one ingest_queue message: it hydrates the
// project from its latest stored snapshot, applies the operation and writes
// the snapshot back. The whole cycle runs under the project lease so
// concurrent workers never interleave snapshot writes.
func ProcessIngestMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	eng *engine.Engine,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(QueueIngestMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.ProjectID == "" {
		return fmt.Errorf("ingest message without project id")
	}

	return leaselock.WithProjectLease(ctx, conn, data.ProjectID, "ingest", func(ctx context.Context) error {
		if err := HydrateProject(ctx, s3Client, eng, data.ProjectID); err != nil {
			return err
		}

		switch data.Operation {
		case OpIngest:
			failed := eng.IngestBatch(ctx, data.ProjectID, data.Documents)
			if len(failed) > 0 {
				// Persist the documents that made it; the failed ones come
				// back through the retry queue.
				if err := PersistProject(ctx, s3Client, eng, data.ProjectID); err != nil {
					return err
				}
				return fmt.Errorf("ingest failed for %d of %d documents", len(failed), len(data.Documents))
			}
		case OpInclude, OpExclude:
			included := data.Operation == OpInclude
			if err := eng.SetDocumentInclusion(ctx, data.ProjectID, data.DocumentID, included); err != nil {
				return err
			}
		case OpImport:
			blob, err := storage.GetFile(ctx, s3Client, data.SnapshotKey)
			if err != nil {
				return err
			}
			mode, err := store.ParseImportMode(data.Mode)
			if err != nil {
				return err
			}
			if err := eng.Import(ctx, data.ProjectID, blob, mode); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown ingest operation %q", data.Operation)
		}

		if err := PersistProject(ctx, s3Client, eng, data.ProjectID); err != nil {
			return err
		}
		logger.Info("[Queue] Applied ingest operation",
			"project_id", data.ProjectID, "operation", data.Operation, "correlation_id", data.CorrelationID)
		return nil
	})
}

// HydrateProject loads the project's latest snapshot into the engine. A
// missing snapshot is a fresh project, not an error.
func HydrateProject(ctx context.Context, s3Client *awss3.Client, eng *engine.Engine, projectID string) error {
	key := storage.SnapshotKey(projectID, "")
	blob, err := storage.GetFile(ctx, s3Client, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("hydrate %s: %w", projectID, err)
	}
	if err := eng.Import(ctx, projectID, blob, store.ImportReplace); err != nil {
		return fmt.Errorf("hydrate %s: %w", projectID, err)
	}
	return nil
}

// PersistProject exports the project and rewrites its latest snapshot.
func PersistProject(ctx context.Context, s3Client *awss3.Client, eng *engine.Engine, projectID string) error {
	blob, err := eng.Export(ctx, projectID)
	if err != nil {
		return fmt.Errorf("persist %s: %w", projectID, err)
	}
	key := storage.SnapshotKey(projectID, "")
	if err := storage.PutSnapshot(ctx, s3Client, key, blob); err != nil {
		return fmt.Errorf("persist %s: %w", projectID, err)
	}
	return nil
}
