package server

import (
	"github.com/helix-research/litgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document routes
	apiRoutes.GET("/projects/:id/documents", routes.GetDocumentsHandler)
	apiRoutes.POST("/projects/:id/documents", routes.AddDocumentsHandler)
	apiRoutes.PATCH("/projects/:id/documents/:doc_id", routes.SetDocumentInclusionHandler)
	apiRoutes.DELETE("/projects/:id/documents/:doc_id", routes.DeleteDocumentHandler)
	apiRoutes.DELETE("/projects/:id", routes.DeleteProjectHandler)

	// Query and graph routes
	apiRoutes.POST("/projects/:id/query", routes.QueryProjectHandler)
	apiRoutes.GET("/projects/:id/graph", routes.GetGraphHandler)

	// Index transfer routes
	apiRoutes.GET("/projects/:id/export", routes.ExportProjectHandler)
	apiRoutes.POST("/projects/:id/import", routes.ImportProjectHandler)
}
