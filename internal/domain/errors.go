package domain

import (
	"context"
	"errors"
	"fmt"
)

// Navigation errors reported by the browser session
var (
	ErrNavigationTimeout    = errors.New("navigation timed out")
	ErrNavigationCanceled   = errors.New("navigation canceled")
	ErrNavigationConnection = errors.New("navigation connection error")
)

// Page content errors: the expected metadata document was absent or malformed
var (
	ErrScriptExecutionFailed = errors.New("script execution failed")
	ErrScriptResultEmpty     = errors.New("script result is empty")
	ErrMetadataParse         = errors.New("failed to parse addon metadata")
)

// Download phase errors
var (
	ErrDownloadNeverStarted = errors.New("download never started")
	ErrDownloadCanceled     = errors.New("download canceled")
	ErrDownloadTimeout      = errors.New("download timed out")
	ErrDownloadError        = errors.New("download failed")
	ErrDownloadTooLarge     = errors.New("download exceeds 4 GiB")
)

// Post-download errors
var (
	ErrArchiveCorrupted = errors.New("archive is corrupted")
	ErrExtractionFailed = errors.New("archive extraction failed")
)

// ErrInvalidAddon is returned for addon lists that cannot be synced as given
var ErrInvalidAddon = errors.New("invalid addon")

// ErrCacheEntryMissing means Materialize was called without a confirmed hit
var ErrCacheEntryMissing = errors.New("cache entry missing")

// ErrOperationCanceled indicates the caller cancelled the operation
var ErrOperationCanceled = errors.New("operation canceled")

// Phase names the Addon Task step an error came from.
type Phase string

const (
	PhaseFetch    Phase = "fetch"
	PhaseParse    Phase = "parse"
	PhaseCache    Phase = "cache"
	PhaseDownload Phase = "download"
	PhaseValidate Phase = "validate"
	PhaseExtract  Phase = "extract"
)

// TaskError carries which addon and which phase failed.
type TaskError struct {
	Addon string
	Phase Phase
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("addon %s: %s: %v", e.Addon, e.Phase, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// InterruptedError keeps the raw interrupt reason of a download next to the
// classified sentinel.
type InterruptedError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%v (reason: %s, url: %s)", e.Err, e.Reason, e.URL)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// IsCanceled reports whether err is a cancellation of any kind.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrOperationCanceled) ||
		errors.Is(err, ErrNavigationCanceled) ||
		errors.Is(err, ErrDownloadCanceled) ||
		errors.Is(err, context.Canceled)
}
