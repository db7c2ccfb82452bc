package routes

import (
	"net/http"

	"github.com/helix-research/litgraph/internal/queue"
	"github.com/helix-research/litgraph/internal/server/middleware"
	"github.com/helix-research/litgraph/internal/storage"
	"github.com/helix-research/litgraph/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ExportProjectHandler exports the project index as a versioned gzip blob.
// With ?link=true the blob is stored and a presigned download link is
// returned instead of the blob itself.
func ExportProjectHandler(c echo.Context) error {
	type exportParams struct {
		ProjectID string `param:"id" validate:"required"`
	}

	type exportResponse struct {
		Message string `json:"message"`
		Key     string `json:"key,omitempty"`
		URL     string `json:"url,omitempty"`
	}

	params := new(exportParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{
			Message: "Invalid request",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	if err := queue.HydrateProject(ctx, app.S3, app.Engine, params.ProjectID); err != nil {
		logger.Error("Failed to hydrate project", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	blob, err := app.Engine.Export(ctx, params.ProjectID)
	if err != nil {
		logger.Error("Failed to export project", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	if c.QueryParam("link") != "true" {
		return c.Blob(http.StatusOK, "application/gzip", blob)
	}

	name, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}
	key := storage.SnapshotKey(params.ProjectID, "snapshot-"+name)
	if err := storage.PutSnapshot(ctx, app.S3, key, blob); err != nil {
		logger.Error("Failed to store export", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}
	url, err := storage.GenerateDownloadLink(ctx, app.S3, key)
	if err != nil {
		logger.Error("Failed to presign export", "project_id", params.ProjectID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, exportResponse{
		Message: "Export ready",
		Key:     key,
		URL:     url,
	})
}
