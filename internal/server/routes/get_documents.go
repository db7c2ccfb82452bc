package routes

import (
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/pkg/engine"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetDocumentsHandler lists a project's documents with their inclusion
// state and chunk counts.
func GetDocumentsHandler(c echo.Context) error {
	type getDocumentsParams struct {
		ProjectID string `param:"id" validate:"required"`
	}

	type getDocumentsResponse struct {
		Message   string                  `json:"message"`
		Documents []engine.DocumentStatus `json:"documents"`
	}

	params := new(getDocumentsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDocumentsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDocumentsResponse{
			Message: "Invalid request",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	if err := queue.HydrateProject(ctx, app.S3, app.Engine, params.ProjectID); err != nil {
		logger.Error("Failed to hydrate project", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, getDocumentsResponse{
			Message: "Internal server error",
		})
	}

	docs := app.Engine.Documents(params.ProjectID)
	return c.JSON(http.StatusOK, getDocumentsResponse{
		Message:   "OK",
		Documents: docs,
	})
}
