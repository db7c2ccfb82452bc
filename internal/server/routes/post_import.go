package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/internal/storage"
	"github.com/helix-research/litgraph/pkg/logger"
	"github.com/helix-research/litgraph/pkg/store"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ImportProjectHandler accepts an export blob, rejects it synchronously on
// schema mismatch and queues the import. Mode comes from ?mode=replace or
// ?mode=merge; replace is the default.
func ImportProjectHandler(c echo.Context) error {
	type importResponse struct {
		Message       string `json:"message"`
		ProjectID     string `json:"project_id,omitempty"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	projectID := c.Param("id")
	if projectID == "" {
		return c.JSON(http.StatusBadRequest, importResponse{
			Message: "Invalid request",
		})
	}

	mode := c.QueryParam("mode")
	if _, err := store.ParseImportMode(mode); err != nil {
		return c.JSON(http.StatusBadRequest, importResponse{
			Message: "Unknown import mode",
		})
	}

	blob, err := io.ReadAll(c.Request().Body)
	if err != nil || len(blob) == 0 {
		return c.JSON(http.StatusBadRequest, importResponse{
			Message: "Invalid request body",
		})
	}

	// Reject bad blobs here so the caller hears about it synchronously
	// instead of through a dead-lettered job.
	if _, err := store.Decode(blob); err != nil {
		if errors.Is(err, store.ErrSchemaMismatch) {
			return c.JSON(http.StatusBadRequest, importResponse{
				Message: "Schema mismatch, blob rejected",
			})
		}
		return c.JSON(http.StatusBadRequest, importResponse{
			Message: "Invalid blob",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, importResponse{
			Message: "Internal server error",
		})
	}

	key := storage.SnapshotKey(projectID, "import-"+correlationID)
	if err := storage.PutSnapshot(ctx, app.S3, key, blob); err != nil {
		logger.Error("Failed to stage import blob", "project_id", projectID, "err", err)
		return c.JSON(http.StatusInternalServerError, importResponse{
			Message: "Internal server error",
		})
	}

	queueData := queue.QueueIngestMsg{
		Message:       "Import project index",
		ProjectID:     projectID,
		CorrelationID: correlationID,
		Operation:     queue.OpImport,
		SnapshotKey:   key,
		Mode:          mode,
	}
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, importResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, "ingest_queue", msgBytes); err != nil {
		logger.Error("Failed to publish to ingest_queue", "project_id", projectID, "err", err)
		return c.JSON(http.StatusInternalServerError, importResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, importResponse{
		Message:       "Import queued",
		ProjectID:     projectID,
		CorrelationID: correlationID,
	})
}
