// Package navigation turns the push-callback browser session into blocking,
// cancellable operations. Only one navigation is outstanding at a time; a
// download-triggering navigation gives up the gate as soon as the download
// starts so transfers run alongside later navigations.
package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/addonsync/internal/browser"
	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
)

// Mode is the shape of a navigation.
type Mode int

const (
	PlainLoad Mode = iota
	LoadAndScript
	LoadAndDownload
)

func (m Mode) String() string {
	switch m {
	case PlainLoad:
		return "load"
	case LoadAndScript:
		return "load+script"
	case LoadAndDownload:
		return "load+download"
	default:
		return "unknown"
	}
}

// Request is created per call and discarded when its outcome resolves.
type Request struct {
	URL    string
	Mode   Mode
	Script string
}

type Options struct {
	// NavigationTimeout bounds one gated navigation. Zero disables it.
	NavigationTimeout time.Duration
	// DownloadStartGrace is how long to wait for DownloadStarting after the
	// navigation itself completed.
	DownloadStartGrace time.Duration
	// AbortGrace is how long to wait for the session to confirm an abort.
	AbortGrace time.Duration
}

func DefaultOptions() Options {
	return Options{
		NavigationTimeout:  60 * time.Second,
		DownloadStartGrace: 5 * time.Second,
		AbortGrace:         5 * time.Second,
	}
}

// Broker funnels every navigation through a one-slot gate.
type Broker struct {
	session browser.Session
	gate    chan struct{}
	opts    Options
	log     *logger.Logger
}

func NewBroker(session browser.Session, log *logger.Logger, opts Options) *Broker {
	if opts.DownloadStartGrace <= 0 {
		opts.DownloadStartGrace = DefaultOptions().DownloadStartGrace
	}
	if opts.AbortGrace <= 0 {
		opts.AbortGrace = DefaultOptions().AbortGrace
	}
	return &Broker{
		session: session,
		gate:    make(chan struct{}, 1),
		opts:    opts,
		log:     log,
	}
}

// NavigateToPage loads url and returns once the session reports completion.
func (b *Broker) NavigateToPage(ctx context.Context, url string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	f, unsubscribe, err := b.start(ctx, Request{URL: url, Mode: PlainLoad}, nil)
	if err != nil {
		return err
	}
	defer unsubscribe()

	return b.awaitLoad(ctx, f, url)
}

// NavigateAndRunScript loads url, runs script against the loaded page and
// returns its decoded result. The gate is held for both steps.
func (b *Broker) NavigateAndRunScript(ctx context.Context, url, script string) (string, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	f, unsubscribe, err := b.start(ctx, Request{URL: url, Mode: LoadAndScript, Script: script}, nil)
	if err != nil {
		return "", err
	}
	defer unsubscribe()

	if err := b.awaitLoad(ctx, f, url); err != nil {
		return "", err
	}

	res, err := b.session.ExecuteScript(ctx, script)
	if err != nil {
		if ctx.Err() != nil {
			return "", canceled(ctx)
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrScriptExecutionFailed, url, err)
	}
	if !res.Succeeded {
		return "", fmt.Errorf("%w: %s", domain.ErrScriptExecutionFailed, url)
	}

	text, err := decodeScriptResult(res.ResultJSON)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrScriptExecutionFailed, url, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrScriptResultEmpty, url)
	}

	return text, nil
}

// NavigateAndStartDownload navigates to a download URL and returns the handle
// of the download it triggers. The gate is released the moment the session
// reports the download, not when the download finishes.
func (b *Broker) NavigateAndStartDownload(ctx context.Context, url string) (browser.Download, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	f, unsubscribe, err := b.start(ctx, Request{URL: url, Mode: LoadAndDownload}, release)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	timeout, stopTimer := b.deadline()
	defer stopTimer()

	var grace <-chan time.Time
	completed := false

	for {
		select {
		case dl := <-f.download:
			b.log.Debug("Download started for %s, navigation gate released", url)
			return dl, nil

		case c := <-f.completed:
			completed = true
			// A download URL reports an aborted connection, followed by the download
			if !c.Success && c.Error != browser.ErrorConnectionAborted {
				return nil, completionError(c, url)
			}
			graceTimer := time.NewTimer(b.opts.DownloadStartGrace)
			defer graceTimer.Stop()
			grace = graceTimer.C

		case <-grace:
			// A download racing the timer is still taken; later ones are canceled
			if dl := f.abandon(); dl != nil {
				return dl, nil
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrDownloadNeverStarted, url)

		case <-ctx.Done():
			b.abort(f, completed)
			return nil, canceled(ctx)

		case <-timeout:
			b.abort(f, completed)
			return nil, fmt.Errorf("%w: %s", domain.ErrNavigationTimeout, url)
		}
	}
}

// acquire takes the gate. The returned release is idempotent so it can be
// both deferred and called early.
func (b *Broker) acquire(ctx context.Context) (func(), error) {
	if ctx.Err() != nil {
		return nil, canceled(ctx)
	}

	select {
	case b.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, canceled(ctx)
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-b.gate })
	}

	// Both cases of the select above may have been ready
	if ctx.Err() != nil {
		release()
		return nil, canceled(ctx)
	}
	return release, nil
}

// start subscribes a fresh completion slot and issues the navigation. A plain
// navigate to the current location would not fire events, so it reloads.
func (b *Broker) start(ctx context.Context, req Request, onDownload func()) (*flight, func(), error) {
	f := newFlight(ctx, req.Mode, onDownload)
	unsubscribe := b.session.Subscribe(f.handle)

	var err error
	if b.session.Source() == req.URL {
		b.log.Debug("Session already at %s, forcing reload", req.URL)
		err = b.session.Reload()
	} else {
		b.log.Debug("Navigating (%s) to %s", req.Mode, req.URL)
		err = b.session.Navigate(req.URL)
	}

	if err != nil {
		unsubscribe()
		return nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrNavigationConnection, req.URL, err)
	}
	return f, unsubscribe, nil
}

func (b *Broker) awaitLoad(ctx context.Context, f *flight, url string) error {
	timeout, stopTimer := b.deadline()
	defer stopTimer()

	select {
	case c := <-f.completed:
		return completionError(c, url)
	case <-ctx.Done():
		b.abort(f, false)
		return canceled(ctx)
	case <-timeout:
		b.abort(f, false)
		return fmt.Errorf("%w: %s", domain.ErrNavigationTimeout, url)
	}
}

// abort stops the outstanding navigation and waits for the session to
// confirm, so the next gate holder never sees this navigation's events. A
// flight whose download already started has given the gate away; only the
// download is canceled then.
func (b *Broker) abort(f *flight, completed bool) {
	if f.mode == LoadAndDownload {
		if dl := f.abandon(); dl != nil {
			dl.Cancel()
			return
		}
	}

	if completed {
		return
	}

	if err := b.session.Stop(); err != nil {
		b.log.Warn("Failed to stop navigation: %v", err)
	}

	grace := time.NewTimer(b.opts.AbortGrace)
	defer grace.Stop()

	select {
	case <-f.completed:
	case <-grace.C:
		b.log.Warn("Session did not confirm aborted navigation within %s", b.opts.AbortGrace)
	}
}

func (b *Broker) deadline() (<-chan time.Time, func()) {
	if b.opts.NavigationTimeout <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(b.opts.NavigationTimeout)
	return t.C, func() { t.Stop() }
}

func completionError(c browser.NavigationCompleted, url string) error {
	if c.Success {
		return nil
	}

	switch c.Error {
	case browser.ErrorTimeout:
		return fmt.Errorf("%w: %s", domain.ErrNavigationTimeout, url)
	case browser.ErrorCanceled:
		return fmt.Errorf("%w: %s", domain.ErrNavigationCanceled, url)
	default:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNavigationConnection, url, c.Error)
	}
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", domain.ErrOperationCanceled, context.Cause(ctx))
}

// decodeScriptResult unwraps the JSON transport encoding of a script result.
// Scripts usually return a string, which arrives double encoded.
func decodeScriptResult(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s, nil
	}

	if !json.Valid([]byte(raw)) {
		return "", fmt.Errorf("result is not valid JSON")
	}
	return raw, nil
}
