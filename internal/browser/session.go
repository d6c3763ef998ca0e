// Package browser defines the push-callback contract of the shared browser
// session. Navigation is single-flight; downloads may run concurrently.
package browser

import "context"

// NavigationID identifies one load or reload issued against the session.
type NavigationID uint64

// ErrorClass is the session's classification of a failed navigation.
type ErrorClass int

const (
	ErrorNone ErrorClass = iota
	ErrorTimeout
	ErrorCanceled
	// ErrorConnectionAborted is what a navigation to a download URL reports
	ErrorConnectionAborted
	ErrorConnection
	ErrorUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorNone:
		return "none"
	case ErrorTimeout:
		return "timeout"
	case ErrorCanceled:
		return "canceled"
	case ErrorConnectionAborted:
		return "connection_aborted"
	case ErrorConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Event is one of NavigationStarting, NavigationCompleted or DownloadStarting.
type Event interface {
	event()
}

// NavigationStarting fires before the session begins loading. Calling Cancel
// from the handler aborts the navigation.
type NavigationStarting struct {
	ID     NavigationID
	URL    string
	Cancel func()
}

// NavigationCompleted fires exactly once per navigation.
type NavigationCompleted struct {
	ID      NavigationID
	Success bool
	Error   ErrorClass
}

// DownloadStarting fires when the session begins writing a download to disk.
type DownloadStarting struct {
	Download Download
}

func (NavigationStarting) event()  {}
func (NavigationCompleted) event() {}
func (DownloadStarting) event()    {}

// Handler receives session events. Handlers must not block; they may be
// invoked from the session's own goroutine.
type Handler func(Event)

// ScriptResult is the raw outcome of ExecuteScript. ResultJSON carries the
// JSON transport encoding of the script's return value.
type ScriptResult struct {
	Succeeded  bool
	ResultJSON string
}

// Session is the single shared browser resource. Implementations are not
// required to be safe for concurrent navigation calls.
type Session interface {
	// Source returns the current location
	Source() string
	Navigate(url string) error
	Reload() error
	// Stop aborts the outstanding navigation, if any
	Stop() error
	ExecuteScript(ctx context.Context, script string) (ScriptResult, error)
	Subscribe(h Handler) (unsubscribe func())
}
