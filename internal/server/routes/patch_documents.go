package routes

import (
	"encoding/json"
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SetDocumentInclusionHandler toggles whether a document contributes to
// the merged graph and to retrieval. The document's data stays stored, so
// re-inclusion needs no re-ingestion.
func SetDocumentInclusionHandler(c echo.Context) error {
	type setInclusionBody struct {
		ProjectID  string `param:"id" validate:"required"`
		DocumentID string `param:"doc_id" validate:"required"`
		Included   *bool  `json:"included" validate:"required"`
	}

	type setInclusionResponse struct {
		Message    string `json:"message"`
		ProjectID  string `json:"project_id,omitempty"`
		DocumentID string `json:"document_id,omitempty"`
		Included   bool   `json:"included"`
	}

	data := new(setInclusionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, setInclusionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, setInclusionResponse{
			Message: "Invalid request body",
		})
	}

	operation := queue.OpExclude
	if *data.Included {
		operation = queue.OpInclude
	}
	queueData := queue.QueueIngestMsg{
		Message:    "Change document inclusion",
		ProjectID:  data.ProjectID,
		Operation:  operation,
		DocumentID: data.DocumentID,
	}
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, setInclusionResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, "ingest_queue", msgBytes); err != nil {
		logger.Error("Failed to publish to ingest_queue", "project_id", data.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, setInclusionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, setInclusionResponse{
		Message:    "Inclusion change queued",
		ProjectID:  data.ProjectID,
		DocumentID: data.DocumentID,
		Included:   *data.Included,
	})
}
