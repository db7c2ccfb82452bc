package routes

import (
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetGraphHandler returns the project's merged graph with its metrics.
func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		ProjectID string `param:"id" validate:"required"`
	}

	type getGraphResponse struct {
		Message string              `json:"message"`
		Graph   *common.MergedGraph `json:"graph,omitempty"`
	}

	params := new(getGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Invalid request",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	if err := queue.HydrateProject(ctx, app.S3, app.Engine, params.ProjectID); err != nil {
		logger.Error("Failed to hydrate project", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}

	merged, err := app.Engine.Graph(params.ProjectID)
	if err != nil {
		logger.Error("Failed to build graph snapshot", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getGraphResponse{
		Message: "OK",
		Graph:   merged,
	})
}
