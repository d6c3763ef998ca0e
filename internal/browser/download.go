package browser

// DownloadState is the state of a download handle.
type DownloadState int

const (
	DownloadInProgress DownloadState = iota
	DownloadInterrupted
	DownloadCompleted
)

func (s DownloadState) String() string {
	switch s {
	case DownloadInProgress:
		return "in_progress"
	case DownloadInterrupted:
		return "interrupted"
	case DownloadCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// InterruptReason explains why a download ended in DownloadInterrupted.
type InterruptReason int

const (
	InterruptNone InterruptReason = iota
	InterruptUserCanceled
	InterruptNetworkTimeout
	InterruptOther
)

func (r InterruptReason) String() string {
	switch r {
	case InterruptNone:
		return "none"
	case InterruptUserCanceled:
		return "user_canceled"
	case InterruptNetworkTimeout:
		return "network_timeout"
	default:
		return "other"
	}
}

// DownloadEventKind tells subscribers what changed.
type DownloadEventKind int

const (
	DownloadBytesChanged DownloadEventKind = iota
	DownloadStateChanged
)

type DownloadEvent struct {
	Kind DownloadEventKind
}

// Download is the handle the session hands out in DownloadStarting.
type Download interface {
	URL() string
	// Path is where the session writes the file
	Path() string
	// TotalBytes is unknown until the response headers were observed
	TotalBytes() (uint64, bool)
	ReceivedBytes() uint64
	State() DownloadState
	InterruptReason() InterruptReason
	// Cancel is expected to surface as DownloadInterrupted with InterruptUserCanceled
	Cancel()
	Subscribe(h func(DownloadEvent)) (unsubscribe func())
}
