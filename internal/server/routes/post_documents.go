package routes

import (
	"encoding/json"
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/pkg/engine"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// AddDocumentsHandler queues a batch of documents for ingestion. The
// payload carries extracted text, page boundaries and entity mentions per
// document; the worker chunks, embeds and graphs them.
func AddDocumentsHandler(c echo.Context) error {
	type addDocumentsBody struct {
		ProjectID string                `param:"id" validate:"required"`
		Documents []engine.IngestParams `json:"documents" validate:"required,min=1"`
	}

	type addDocumentsResponse struct {
		Message       string `json:"message"`
		ProjectID     string `json:"project_id,omitempty"`
		CorrelationID string `json:"correlation_id,omitempty"`
		Documents     int    `json:"documents,omitempty"`
	}

	data := new(addDocumentsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, addDocumentsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, addDocumentsResponse{
			Message: "Invalid request body",
		})
	}
	for _, doc := range data.Documents {
		if doc.DocumentID == "" {
			return c.JSON(http.StatusBadRequest, addDocumentsResponse{
				Message: "Every document needs a document_id",
			})
		}
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, addDocumentsResponse{
			Message: "Internal server error",
		})
	}

	queueData := queue.QueueIngestMsg{
		Message:       "Ingest documents",
		ProjectID:     data.ProjectID,
		CorrelationID: correlationID,
		Operation:     queue.OpIngest,
		Documents:     data.Documents,
	}
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, addDocumentsResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, "ingest_queue", msgBytes); err != nil {
		logger.Error("Failed to publish to ingest_queue", "project_id", data.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, addDocumentsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, addDocumentsResponse{
		Message:       "Documents queued for ingestion",
		ProjectID:     data.ProjectID,
		CorrelationID: correlationID,
		Documents:     len(data.Documents),
	})
}
