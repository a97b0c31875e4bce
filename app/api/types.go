package api

import (
	"billtracker/app/pipeline"
	"billtracker/app/search"
)

type Handler struct {
	pipeline *pipeline.Pipeline
	searcher *search.Searcher
	version  string
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	URL               string `json:"url" binding:"required"`
	TimeBoxed         bool   `json:"time_boxed"`
	DownloadDocuments bool   `json:"download_documents"`
	ExtractText       bool   `json:"extract_text"`
}

// DocumentRequest is the body of POST /api/documents.
type DocumentRequest struct {
	URL string `json:"url" binding:"required"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Date string `json:"date" binding:"required"`
}
