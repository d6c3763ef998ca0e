package navigation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/datallboy/addonsync/internal/browser"
)

// flight is the completion slot of one gated navigation. Each result channel
// holds at most one value and is filled at most once.
type flight struct {
	ctx  context.Context
	mode Mode

	adopted atomic.Uint64 // NavigationID + 1, zero until Starting was seen

	completed     chan browser.NavigationCompleted
	completedOnce sync.Once

	download     chan browser.Download
	downloadOnce sync.Once
	onDownload   func()

	// mu orders a late DownloadStarting against abort
	mu      sync.Mutex
	aborted bool
}

func newFlight(ctx context.Context, mode Mode, onDownload func()) *flight {
	return &flight{
		ctx:        ctx,
		mode:       mode,
		completed:  make(chan browser.NavigationCompleted, 1),
		download:   make(chan browser.Download, 1),
		onDownload: onDownload,
	}
}

// handle runs on the session's goroutine and never blocks.
func (f *flight) handle(e browser.Event) {
	switch e := e.(type) {
	case browser.NavigationStarting:
		if !f.adopted.CompareAndSwap(0, uint64(e.ID)+1) {
			return
		}
		if f.ctx.Err() != nil && e.Cancel != nil {
			e.Cancel()
		}

	case browser.NavigationCompleted:
		if f.adopted.Load() != uint64(e.ID)+1 {
			return
		}
		f.completedOnce.Do(func() { f.completed <- e })

	case browser.DownloadStarting:
		if f.mode != LoadAndDownload || f.adopted.Load() == 0 {
			return
		}
		f.downloadOnce.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			if f.aborted {
				// Nobody will await it and the gate must stay with the caller
				e.Download.Cancel()
				return
			}
			f.download <- e.Download
			if f.onDownload != nil {
				f.onDownload()
			}
		})
	}
}

// abandon marks the flight aborted and returns a download that was already
// handed over, if any. Once a download was handed over the gate is released.
func (f *flight) abandon() browser.Download {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.aborted = true
	select {
	case dl := <-f.download:
		return dl
	default:
		return nil
	}
}
