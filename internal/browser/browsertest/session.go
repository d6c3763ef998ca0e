// Package browsertest provides a scripted in-memory browser.Session. It fires
// events from its own goroutines the way a real browser would and records
// how it was driven so tests can assert on navigation concurrency.
package browsertest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datallboy/addonsync/internal/browser"
	"github.com/google/uuid"
)

// Page describes how the session answers a navigation to one URL.
type Page struct {
	// ScriptJSON is returned verbatim as the script's JSON result
	ScriptJSON  string
	ScriptFails bool

	// Error makes the navigation fail with the given class
	Error browser.ErrorClass

	// Download turns the page into a download URL
	Download *DownloadSpec

	// Latency overrides the session's default navigation latency
	Latency time.Duration
}

// DownloadSpec scripts the lifetime of a download.
type DownloadSpec struct {
	Content []byte
	// Chunks is the number of byte events; 0 models a small file where the
	// browser never reports bytes before completion
	Chunks     int
	ChunkDelay time.Duration
	// Total overrides the reported total size
	Total     uint64
	HideTotal bool
	// Interrupt ends the download with this reason instead of completing
	Interrupt browser.InterruptReason
	// Hold keeps the download in progress until Cancel is called
	Hold bool
	// Started is closed when the download begins, if set
	Started chan struct{}
}

type navigation struct {
	id       browser.NavigationID
	url      string
	stop     chan struct{}
	stopOnce sync.Once
}

// Session is a scripted browser.Session.
type Session struct {
	dir     string
	latency time.Duration

	subs browser.Subscribers[browser.Event]

	mu          sync.Mutex
	pages       map[string]Page
	source      string
	seq         uint64
	current     *navigation
	navigations map[string]int
	downloads   map[string]int
	reloads     int
	scripts     int
	stops       int

	inflight    atomic.Int32
	maxInflight atomic.Int32
	overlap     atomic.Bool
}

// New creates a session writing downloads into dir.
func New(dir string) *Session {
	return &Session{
		dir:         dir,
		latency:     2 * time.Millisecond,
		pages:       make(map[string]Page),
		navigations: make(map[string]int),
		downloads:   make(map[string]int),
	}
}

// SetLatency changes the default time between NavigationStarting and
// NavigationCompleted.
func (s *Session) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// SetPage registers or replaces the behaviour for url.
func (s *Session) SetPage(url string, p Page) {
	s.mu.Lock()
	s.pages[url] = p
	s.mu.Unlock()
}

func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) Navigate(url string) error {
	s.mu.Lock()
	s.seq++
	nav := &navigation{id: browser.NavigationID(s.seq), url: url, stop: make(chan struct{})}
	page, ok := s.pages[url]
	latency := s.latency
	if page.Latency > 0 {
		latency = page.Latency
	}
	s.navigations[url]++
	s.current = nav
	s.mu.Unlock()

	go s.run(nav, page, ok, latency)
	return nil
}

func (s *Session) Reload() error {
	s.mu.Lock()
	s.reloads++
	url := s.source
	s.mu.Unlock()
	return s.Navigate(url)
}

func (s *Session) Stop() error {
	s.mu.Lock()
	s.stops++
	nav := s.current
	s.mu.Unlock()

	if nav != nil {
		nav.stopOnce.Do(func() { close(nav.stop) })
	}
	return nil
}

func (s *Session) ExecuteScript(ctx context.Context, script string) (browser.ScriptResult, error) {
	if err := ctx.Err(); err != nil {
		return browser.ScriptResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts++

	page := s.pages[s.source]
	if page.ScriptFails {
		return browser.ScriptResult{Succeeded: false}, nil
	}
	return browser.ScriptResult{Succeeded: true, ResultJSON: page.ScriptJSON}, nil
}

func (s *Session) Subscribe(h browser.Handler) func() {
	return s.subs.Add(h)
}

// run replays one navigation: starting, latency, completion and optionally a
// download.
func (s *Session) run(nav *navigation, page Page, known bool, latency time.Duration) {
	if n := s.inflight.Add(1); n > 1 {
		s.overlap.Store(true)
	}
	for {
		n := s.inflight.Load()
		m := s.maxInflight.Load()
		if n <= m || s.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	var canceled atomic.Bool
	s.subs.Dispatch(browser.NavigationStarting{
		ID:     nav.id,
		URL:    nav.url,
		Cancel: func() { canceled.Store(true) },
	})

	if canceled.Load() {
		s.complete(nav, false, browser.ErrorCanceled)
		return
	}

	select {
	case <-time.After(latency):
	case <-nav.stop:
		s.complete(nav, false, browser.ErrorCanceled)
		return
	}

	switch {
	case !known:
		s.complete(nav, false, browser.ErrorConnection)
	case page.Download != nil:
		s.complete(nav, false, browser.ErrorConnectionAborted)
		s.startDownload(nav.url, page.Download)
	case page.Error != browser.ErrorNone:
		s.complete(nav, false, page.Error)
	default:
		s.mu.Lock()
		s.source = nav.url
		s.mu.Unlock()
		s.complete(nav, true, browser.ErrorNone)
	}
}

func (s *Session) complete(nav *navigation, success bool, class browser.ErrorClass) {
	s.mu.Lock()
	if s.current == nav {
		s.current = nil
	}
	s.mu.Unlock()

	s.inflight.Add(-1)
	s.subs.Dispatch(browser.NavigationCompleted{ID: nav.id, Success: success, Error: class})
}

func (s *Session) startDownload(url string, spec *DownloadSpec) {
	d := &Download{
		url:    url,
		path:   filepath.Join(s.dir, uuid.NewString()),
		cancel: make(chan struct{}),
	}

	total := uint64(len(spec.Content))
	if spec.Total > 0 {
		total = spec.Total
	}
	if !spec.HideTotal {
		d.total = total
		d.totalKnown = true
	}

	s.mu.Lock()
	s.downloads[url]++
	s.mu.Unlock()

	s.subs.Dispatch(browser.DownloadStarting{Download: d})
	if spec.Started != nil {
		close(spec.Started)
	}

	go d.run(spec)
}

// Navigations returns how often url was navigated to, reloads included.
func (s *Session) Navigations(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations[url]
}

// Downloads returns how many downloads url started.
func (s *Session) Downloads(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[url]
}

// TotalDownloads returns the number of downloads started on the session.
func (s *Session) TotalDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.downloads {
		total += n
	}
	return total
}

func (s *Session) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Stops returns how many times Stop was called.
func (s *Session) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *Session) Scripts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scripts
}

// MaxConcurrentNavigations is the highest number of navigations observed
// between their starting and completed events at the same time.
func (s *Session) MaxConcurrentNavigations() int {
	return int(s.maxInflight.Load())
}

// Overlapped reports whether two navigations were ever in flight together.
func (s *Session) Overlapped() bool {
	return s.overlap.Load()
}

// Subscribers returns the number of registered session handlers.
func (s *Session) Subscribers() int {
	return s.subs.Len()
}

// Download is the scripted browser.Download handed out by Session.
type Download struct {
	url  string
	path string

	subs browser.Subscribers[browser.DownloadEvent]

	mu         sync.Mutex
	total      uint64
	totalKnown bool
	received   uint64
	state      browser.DownloadState
	reason     browser.InterruptReason

	cancel     chan struct{}
	cancelOnce sync.Once
}

func (d *Download) URL() string  { return d.url }
func (d *Download) Path() string { return d.path }

func (d *Download) TotalBytes() (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total, d.totalKnown
}

func (d *Download) ReceivedBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received
}

func (d *Download) State() browser.DownloadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Download) InterruptReason() browser.InterruptReason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

func (d *Download) Cancel() {
	d.cancelOnce.Do(func() { close(d.cancel) })
}

func (d *Download) Subscribe(h func(browser.DownloadEvent)) func() {
	return d.subs.Add(h)
}

func (d *Download) run(spec *DownloadSpec) {
	f, err := os.Create(d.path)
	if err != nil {
		d.finish(browser.DownloadInterrupted, browser.InterruptOther)
		return
	}

	content := spec.Content
	if spec.Chunks > 0 {
		size := (len(content) + spec.Chunks - 1) / spec.Chunks
		if size == 0 {
			size = 1
		}
		for off := 0; off < len(content); off += size {
			end := min(off+size, len(content))

			select {
			case <-d.cancel:
				f.Close()
				os.Remove(d.path)
				d.finish(browser.DownloadInterrupted, browser.InterruptUserCanceled)
				return
			case <-time.After(spec.ChunkDelay):
			}

			if _, err := f.Write(content[off:end]); err != nil {
				f.Close()
				d.finish(browser.DownloadInterrupted, browser.InterruptOther)
				return
			}

			d.mu.Lock()
			d.received = uint64(end)
			d.mu.Unlock()
			d.subs.Dispatch(browser.DownloadEvent{Kind: browser.DownloadBytesChanged})
		}
	} else if _, err := f.Write(content); err != nil {
		f.Close()
		d.finish(browser.DownloadInterrupted, browser.InterruptOther)
		return
	}
	f.Close()

	if spec.Hold {
		<-d.cancel
		os.Remove(d.path)
		d.finish(browser.DownloadInterrupted, browser.InterruptUserCanceled)
		return
	}

	if spec.Interrupt != browser.InterruptNone {
		d.finish(browser.DownloadInterrupted, spec.Interrupt)
		return
	}

	d.finish(browser.DownloadCompleted, browser.InterruptNone)
}

func (d *Download) finish(state browser.DownloadState, reason browser.InterruptReason) {
	d.mu.Lock()
	d.state = state
	d.reason = reason
	d.mu.Unlock()
	d.subs.Dispatch(browser.DownloadEvent{Kind: browser.DownloadStateChanged})
}
