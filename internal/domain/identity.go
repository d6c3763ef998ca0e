package domain

import (
	"fmt"
	"time"
)

// DownloadURLFormat builds the file download URL from project and file id.
const DownloadURLFormat = "https://www.curseforge.com/api/v1/mods/%d/files/%d/download"

// PackageIdentity is derived from an addon page's metadata document.
// Two identities are equal iff all fields match.
type PackageIdentity struct {
	ProjectID uint64 `json:"projectId"`
	FileID    uint64 `json:"fileId"`
	FileName  string `json:"fileName"`
	Size      uint64 `json:"size"`
}

// DownloadURL returns the URL the browser navigates to for the archive.
func (p PackageIdentity) DownloadURL() string {
	return fmt.Sprintf(DownloadURLFormat, p.ProjectID, p.FileID)
}

// CacheEntry is one row of the SmartUpdate table, keyed by addon name.
type CacheEntry struct {
	Addon       string    `json:"addon"`
	DownloadURL string    `json:"downloadUrl"`
	FileName    string    `json:"fileName"`
	ChangedAt   time.Time `json:"changedAt"`
}

// Matches reports whether the entry was recorded for the same package.
func (e CacheEntry) Matches(id PackageIdentity) bool {
	return e.DownloadURL == id.DownloadURL() && e.FileName == id.FileName
}
