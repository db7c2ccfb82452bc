package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/helix-research/litgraph/internal/storage"
	"github.com/helix-research/litgraph/pkg/engine"
	"github.com/helix-research/litgraph/pkg/leaselock"
	"github.com/helix-research/litgraph/pkg/logger"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessDeleteMessage handles one delete_queue message. Deleting a
// document rewrites the snapshot; deleting a project removes every stored
// object under the project prefix, vectors included.
func ProcessDeleteMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	eng *engine.Engine,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(QueueDeleteMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.ProjectID == "" {
		return fmt.Errorf("delete message without project id")
	}

	return leaselock.WithProjectLease(ctx, conn, data.ProjectID, "delete", func(ctx context.Context) error {
		if err := HydrateProject(ctx, s3Client, eng, data.ProjectID); err != nil {
			return err
		}

		if data.DocumentID != "" {
			if err := eng.RemoveDocument(ctx, data.ProjectID, data.DocumentID); err != nil {
				return err
			}
			if err := PersistProject(ctx, s3Client, eng, data.ProjectID); err != nil {
				return err
			}
			logger.Info("[Queue] Deleted document", "project_id", data.ProjectID, "document_id", data.DocumentID)
			return nil
		}

		// Project deletion: drop every document so the vector index is
		// purged, then remove the stored objects.
		for _, doc := range eng.Documents(data.ProjectID) {
			if err := eng.RemoveDocument(ctx, data.ProjectID, doc.Document.ID); err != nil {
				return err
			}
		}
		prefix := fmt.Sprintf("projects/%s/", data.ProjectID)
		if err := storage.DeleteFolder(ctx, s3Client, prefix); err != nil {
			return err
		}
		logger.Info("[Queue] Deleted project", "project_id", data.ProjectID)
		return nil
	})
}
