// Knowledge HTTP handlers.
//
// This file exposes the staff-only document ingestion endpoint:
//   - POST /knowledge/files  (multipart upload, embedded into the knowledge table)
//
// The uploaded file is spooled to a temporary path, handed to the knowledge
// service for embedding, and removed afterwards.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// EmbedFileResponse confirms a successful ingestion.
type EmbedFileResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// EmbedKnowledgeFile ingests one reference document. Staff only.
func (h *Handlers) EmbedKnowledgeFile(c *gin.Context) {
	if !isStaff(c) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "staff role required")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}

	dir, err := os.MkdirTemp("", "knowledge-upload-*")
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	// Base name only: the client path must not influence where we write.
	dst := filepath.Join(dir, filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	if err := h.knowledgeSvc.EmbedFile(c.Request.Context(), dst); err != nil {
		fail(c, http.StatusBadGateway, ErrCodeEmbedFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, EmbedFileResponse{Filename: fh.Filename, Status: "embedded"})
}
