package routes

import (
	"encoding/json"
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteDocumentHandler queues the removal of one document.
func DeleteDocumentHandler(c echo.Context) error {
	type deleteDocumentParams struct {
		ProjectID  string `param:"id" validate:"required"`
		DocumentID string `param:"doc_id" validate:"required"`
	}

	params := new(deleteDocumentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request"})
	}

	return publishDelete(c, queue.QueueDeleteMsg{
		Message:    "Delete document",
		ProjectID:  params.ProjectID,
		DocumentID: params.DocumentID,
	})
}

// DeleteProjectHandler queues the removal of a whole project, stored
// snapshots and vectors included.
func DeleteProjectHandler(c echo.Context) error {
	type deleteProjectParams struct {
		ProjectID string `param:"id" validate:"required"`
	}

	params := new(deleteProjectParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request"})
	}

	return publishDelete(c, queue.QueueDeleteMsg{
		Message:   "Delete project",
		ProjectID: params.ProjectID,
	})
}

func publishDelete(c echo.Context, queueData queue.QueueDeleteMsg) error {
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, "delete_queue", msgBytes); err != nil {
		logger.Error("Failed to publish to delete_queue", "project_id", queueData.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message": "Deletion queued"})
}
