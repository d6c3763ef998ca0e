package chrome

import (
	"path/filepath"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/datallboy/addonsync/internal/browser"
)

func (s *Session) onBrowserEvent(ev any) {
	switch ev := ev.(type) {
	case *cdpbrowser.EventDownloadWillBegin:
		d := &download{
			session: s,
			guid:    ev.GUID,
			url:     ev.URL,
			path:    filepath.Join(s.opts.DownloadDir, ev.GUID),
			state:   browser.DownloadInProgress,
		}
		s.mu.Lock()
		s.downloads[ev.GUID] = d
		s.mu.Unlock()

		s.log.Debug("Download %s started: %s (%s)", ev.GUID, ev.URL, ev.SuggestedFilename)
		s.subs.Dispatch(browser.DownloadStarting{Download: d})

	case *cdpbrowser.EventDownloadProgress:
		s.mu.Lock()
		d := s.downloads[ev.GUID]
		if d != nil && ev.State != cdpbrowser.DownloadProgressStateInProgress {
			delete(s.downloads, ev.GUID)
		}
		s.mu.Unlock()

		if d != nil {
			d.update(ev)
		}
	}
}

// download is the browser.Download handle of one GUID.
type download struct {
	session *Session
	guid    string
	url     string
	path    string

	mu        sync.Mutex
	total     uint64
	received  uint64
	state     browser.DownloadState
	reason    browser.InterruptReason
	canceling bool

	subs browser.Subscribers[browser.DownloadEvent]
}

func (d *download) update(ev *cdpbrowser.EventDownloadProgress) {
	d.mu.Lock()
	if d.state != browser.DownloadInProgress {
		d.mu.Unlock()
		return
	}

	kind := browser.DownloadBytesChanged
	if ev.TotalBytes > 0 {
		d.total = uint64(ev.TotalBytes)
	}
	d.received = uint64(ev.ReceivedBytes)

	switch ev.State {
	case cdpbrowser.DownloadProgressStateCompleted:
		d.state = browser.DownloadCompleted
		kind = browser.DownloadStateChanged
	case cdpbrowser.DownloadProgressStateCanceled:
		d.state = browser.DownloadInterrupted
		d.reason = browser.InterruptOther
		if d.canceling {
			d.reason = browser.InterruptUserCanceled
		}
		kind = browser.DownloadStateChanged
	}
	d.mu.Unlock()

	d.subs.Dispatch(browser.DownloadEvent{Kind: kind})
}

func (d *download) URL() string  { return d.url }
func (d *download) Path() string { return d.path }

func (d *download) TotalBytes() (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total, d.total > 0
}

func (d *download) ReceivedBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received
}

func (d *download) State() browser.DownloadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *download) InterruptReason() browser.InterruptReason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// Cancel asks the browser to cancel; the interruption arrives as a progress
// event.
func (d *download) Cancel() {
	d.mu.Lock()
	if d.state != browser.DownloadInProgress || d.canceling {
		d.mu.Unlock()
		return
	}
	d.canceling = true
	d.mu.Unlock()

	s := d.session
	go func() {
		exec := cdp.WithExecutor(s.tabCtx, chromedp.FromContext(s.tabCtx).Browser)
		if err := cdpbrowser.CancelDownload(d.guid).Do(exec); err != nil {
			s.log.Warn("Failed to cancel download %s: %v", d.guid, err)
		}
	}()
}

func (d *download) Subscribe(h func(browser.DownloadEvent)) func() {
	return d.subs.Add(h)
}
