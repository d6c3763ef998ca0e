// Package chrome implements browser.Session on top of a Chromium instance
// driven through the DevTools protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/datallboy/addonsync/internal/browser"
	"github.com/datallboy/addonsync/internal/infra/logger"
)

type Options struct {
	ExecPath    string
	Headless    bool
	UserDataDir string
	// DownloadDir receives every download, named by its GUID
	DownloadDir string
}

// Session drives one browser tab. All navigations run in that tab.
type Session struct {
	opts Options
	log  *logger.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	subs browser.Subscribers[browser.Event]

	mu        sync.Mutex
	source    string
	seq       uint64
	navCancel context.CancelFunc
	downloads map[string]*download
}

// New launches the browser and opens the tab.
func New(ctx context.Context, opts Options, log *logger.Logger) (*Session, error) {
	if opts.DownloadDir == "" {
		return nil, errors.New("chrome: download directory is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("chrome: create download dir: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-features", "DownloadBubble,DownloadBubbleV2"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debug))

	s := &Session{
		opts:        opts,
		log:         log,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		downloads:   make(map[string]*download),
	}

	// The first Run starts the browser
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("chrome: launch: %w", err)
	}

	// Download events are emitted on the browser session, not the tab
	chromedp.ListenBrowser(tabCtx, s.onBrowserEvent)

	exec := cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Browser)
	err := cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(opts.DownloadDir).
		WithEventsEnabled(true).
		Do(exec)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("chrome: set download behavior: %w", err)
	}

	log.Info("Browser session started (headless=%t)", opts.Headless)
	return s, nil
}

// Close shuts the tab and the browser process down.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) Navigate(url string) error {
	s.mu.Lock()
	s.source = url
	s.mu.Unlock()
	return s.begin(url, chromedp.Navigate(url))
}

func (s *Session) Reload() error {
	return s.begin(s.Source(), chromedp.Reload())
}

// begin announces a navigation and runs it on its own goroutine. Stop and
// the NavigationStarting cancel func both end it through navCtx.
func (s *Session) begin(url string, action chromedp.Action) error {
	if err := s.tabCtx.Err(); err != nil {
		return fmt.Errorf("chrome: session closed: %w", err)
	}

	navCtx, cancel := context.WithCancel(s.tabCtx)

	s.mu.Lock()
	s.seq++
	id := browser.NavigationID(s.seq)
	if s.navCancel != nil {
		s.navCancel()
	}
	s.navCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()

		s.subs.Dispatch(browser.NavigationStarting{ID: id, URL: url, Cancel: cancel})

		err := navCtx.Err()
		if err == nil {
			err = chromedp.Run(navCtx, action)
		}

		completed := browser.NavigationCompleted{ID: id, Success: err == nil}
		if err != nil {
			completed.Error = classify(err)
			s.log.Debug("Navigation %d to %s failed (%s): %v", id, url, completed.Error, err)
		}
		s.subs.Dispatch(completed)
	}()

	return nil
}

func (s *Session) Stop() error {
	s.mu.Lock()
	cancel := s.navCancel
	s.navCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := chromedp.Run(s.tabCtx, page.StopLoading()); err != nil {
		return fmt.Errorf("chrome: stop loading: %w", err)
	}
	return nil
}

// ExecuteScript evaluates script in the tab. A script exception is a failed
// result rather than an error; errors are reserved for the transport.
func (s *Session) ExecuteScript(ctx context.Context, script string) (browser.ScriptResult, error) {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw []byte
	err := chromedp.Run(runCtx, chromedp.Evaluate(script, &raw))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return browser.ScriptResult{}, ctxErr
		}
		if s.tabCtx.Err() != nil {
			return browser.ScriptResult{}, fmt.Errorf("chrome: session closed: %w", err)
		}
		s.log.Debug("Script evaluation failed: %v", err)
		return browser.ScriptResult{Succeeded: false}, nil
	}

	return browser.ScriptResult{Succeeded: true, ResultJSON: string(raw)}, nil
}

func (s *Session) Subscribe(h browser.Handler) func() {
	return s.subs.Add(h)
}

// classify maps a DevTools navigation error to an ErrorClass. Chromium only
// reports network errors as text, so the net:: code is matched.
func classify(err error) browser.ErrorClass {
	switch {
	case err == nil:
		return browser.ErrorNone
	case errors.Is(err, context.Canceled):
		return browser.ErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return browser.ErrorTimeout
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_ABORTED"):
		return browser.ErrorConnectionAborted
	case strings.Contains(msg, "net::ERR_TIMED_OUT"),
		strings.Contains(msg, "net::ERR_CONNECTION_TIMED_OUT"):
		return browser.ErrorTimeout
	case strings.Contains(msg, "net::ERR_NAME_NOT_RESOLVED"),
		strings.Contains(msg, "net::ERR_CONNECTION_"),
		strings.Contains(msg, "net::ERR_INTERNET_DISCONNECTED"),
		strings.Contains(msg, "net::ERR_ADDRESS_UNREACHABLE"):
		return browser.ErrorConnection
	default:
		return browser.ErrorUnknown
	}
}
