package routes

import (
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/pkg/ai"
	"github.com/helix-research/litgraph/pkg/assemble"
	"github.com/helix-research/litgraph/pkg/engine"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// QueryProjectHandler runs a hybrid retrieval query against a project and,
// when a generator is configured, returns the generated answer with its
// citations. An empty retrieval context is a valid empty response.
func QueryProjectHandler(c echo.Context) error {
	type queryProjectRequest struct {
		ProjectID    string   `param:"id" validate:"required"`
		Text         string   `json:"text" validate:"required"`
		Seeds        []string `json:"seeds"`
		Task         string   `json:"task"`
		TopK         int      `json:"top_k"`
		IncludeGraph bool     `json:"include_graph"`
	}

	type queryProjectResponse struct {
		Message string              `json:"message"`
		Result  *engine.QueryResult `json:"result,omitempty"`
		Metrics *ai.ModelMetrics    `json:"metrics,omitempty"`
	}

	data := new(queryProjectRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryProjectResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryProjectResponse{
			Message: "Invalid request body",
		})
	}

	task := assemble.TaskAnswer
	if data.Task != "" {
		parsed, err := assemble.ParseTask(data.Task)
		if err != nil {
			return c.JSON(http.StatusBadRequest, queryProjectResponse{
				Message: "Unknown task",
			})
		}
		task = parsed
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	if err := queue.HydrateProject(ctx, app.S3, app.Engine, data.ProjectID); err != nil {
		logger.Error("Failed to hydrate project", "project_id", data.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, queryProjectResponse{
			Message: "Internal server error",
		})
	}

	result, err := app.Engine.Query(ctx, data.ProjectID, engine.QueryParams{
		Text:         data.Text,
		Seeds:        data.Seeds,
		TopK:         data.TopK,
		Task:         task,
		IncludeGraph: data.IncludeGraph,
	})
	if err != nil {
		logger.Error("[Query] engine error", "project_id", data.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, queryProjectResponse{
			Message: "Internal server error",
		})
	}

	metrics := app.AiClient.GetMetrics()
	return c.JSON(http.StatusOK, queryProjectResponse{
		Message: "OK",
		Result:  result,
		Metrics: &metrics,
	})
}
