package controllers

import (
	"time"

	"github.com/datallboy/addonsync/internal/domain"
)

// -- RUNS (/api/runs) ---
type CreateRunRequest struct {
	// Addons overrides the configured addon list when set
	Addons []string `json:"addons"`
}

type RunListResponse struct {
	Runs   []domain.RunView `json:"runs"`
	Active *domain.RunView  `json:"active,omitempty"`
}

// -- CACHE (/api/cache) ---
type CacheEntryResponse struct {
	Addon       string    `json:"addon"`
	FileName    string    `json:"file_name"`
	DownloadURL string    `json:"download_url"`
	ChangedAt   time.Time `json:"changed_at"`
}

type CacheResponse struct {
	Entries []CacheEntryResponse `json:"entries"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
