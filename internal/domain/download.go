package domain

// DownloadProgress is the normalized record forwarded to progress sinks.
type DownloadProgress struct {
	URL           string `json:"url"`
	Path          string `json:"path"`
	TotalBytes    uint64 `json:"totalBytes"`
	ReceivedBytes uint64 `json:"receivedBytes"`
}

// MaxDownloadBytes is the largest archive size that can be represented.
const MaxDownloadBytes uint64 = 1<<32 - 1
