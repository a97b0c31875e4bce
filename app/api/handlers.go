package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"billtracker/app/pipeline"
	"billtracker/app/search"
)

func NewHandler(p *pipeline.Pipeline, s *search.Searcher, version string) *Handler {
	return &Handler{pipeline: p, searcher: s, version: version}
}

// Extract runs the full pipeline for one bill URL. A hard pipeline failure
// produces {"error": ...} with no record; document-level failures ride along
// inside the record's errors array.
func (h *Handler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	opts := pipeline.Options{
		TimeBoxed:         req.TimeBoxed,
		DownloadDocuments: req.DownloadDocuments,
		ExtractText:       req.ExtractText,
	}

	rec, err := h.pipeline.Extract(c.Request.Context(), req.URL, opts)
	if err != nil {
		slog.Error("Pipeline failed", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// DownloadDocuments is the legacy endpoint shape: extract with downloads on.
func (h *Handler) DownloadDocuments(c *gin.Context) {
	var body struct {
		SutraURL string `json:"sutraUrl" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sutra URL is required."})
		return
	}

	opts := pipeline.Options{DownloadDocuments: true}
	rec, err := h.pipeline.Extract(c.Request.Context(), body.SutraURL, opts)
	if err != nil {
		slog.Error("Pipeline failed", "url", body.SutraURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// FetchDocument retrieves a single attachment synchronously.
func (h *Handler) FetchDocument(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	ref, err := h.pipeline.FetchDocument(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ref)
}

// Search returns summaries of every bill filed on the requested date,
// walking the tracker's paginated search results.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required (YYYY-MM-DD)"})
		return
	}

	result, err := h.searcher.ByDate(c.Request.Context(), req.Date)
	if err != nil {
		if errors.Is(err, search.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Search failed", "date", req.Date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "up",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
