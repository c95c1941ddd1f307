package handlers

import (
	"fmt"
	"io"
	"net/http"

	"lifedash-backend/logger"
	"lifedash-backend/service"

	"github.com/gin-gonic/gin"
)

// ExportHandler handles HTTP requests for dashboard exports
type ExportHandler struct {
	exports *service.ExportService
	log     *logger.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(exports *service.ExportService, log *logger.Logger) *ExportHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ExportHandler{exports: exports, log: log.With("component", "export_handler")}
}

// CreateExport handles POST /api/users/:userId/exports
func (h *ExportHandler) CreateExport(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	result, err := h.exports.Export(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, result)
}

// GetExport handles GET /api/users/:userId/exports/:exportId
func (h *ExportHandler) GetExport(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	exportID := c.Param("exportId")

	rc, err := h.exports.Open(c.Request.Context(), userID, exportID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="dashboard-%s.json"`, exportID))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Warn("failed to stream export", "user_id", userID, "export_id", exportID, "error", err)
	}
}
