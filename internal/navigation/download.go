package navigation

import (
	"context"
	"fmt"
	"time"

	"github.com/datallboy/addonsync/internal/browser"
	"github.com/datallboy/addonsync/internal/domain"
	"github.com/dustin/go-humanize"
)

// AwaitDownload follows a started download until it completes. It does not
// touch the gate. sink receives a report every time the received byte count
// moves and always a final one with ReceivedBytes == TotalBytes.
func (b *Broker) AwaitDownload(ctx context.Context, dl browser.Download, sink func(domain.DownloadProgress)) error {
	if sink == nil {
		sink = func(domain.DownloadProgress) {}
	}

	changed := make(chan struct{}, 1)
	unsubscribe := dl.Subscribe(func(browser.DownloadEvent) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var lastReceived uint64
	reported := false

	for {
		total, known := dl.TotalBytes()
		if known && total > domain.MaxDownloadBytes {
			dl.Cancel()
			b.log.Warn("Canceled download of %s: %s exceeds limit", dl.URL(), humanize.IBytes(total))
			return fmt.Errorf("%w: %s (%s)", domain.ErrDownloadTooLarge, dl.URL(), humanize.IBytes(total))
		}

		switch dl.State() {
		case browser.DownloadCompleted:
			received := dl.ReceivedBytes()
			if !known || total < received {
				total = received
			}
			sink(domain.DownloadProgress{
				URL:           dl.URL(),
				Path:          dl.Path(),
				TotalBytes:    total,
				ReceivedBytes: total,
			})
			b.log.Debug("Download of %s completed (%s)", dl.URL(), humanize.IBytes(total))
			return nil

		case browser.DownloadInterrupted:
			return interrupted(dl)
		}

		if received := dl.ReceivedBytes(); received != lastReceived || !reported {
			lastReceived = received
			reported = true
			sink(domain.DownloadProgress{
				URL:           dl.URL(),
				Path:          dl.Path(),
				TotalBytes:    total,
				ReceivedBytes: received,
			})
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return b.cancelDownload(ctx, dl, changed)
		}
	}
}

// cancelDownload asks the session to cancel and waits for it to report the
// interruption.
func (b *Broker) cancelDownload(ctx context.Context, dl browser.Download, changed <-chan struct{}) error {
	dl.Cancel()

	grace := time.NewTimer(b.opts.AbortGrace)
	defer grace.Stop()

	for {
		switch dl.State() {
		case browser.DownloadInterrupted:
			return fmt.Errorf("%w: %w", domain.ErrOperationCanceled, interrupted(dl))
		case browser.DownloadCompleted:
			// Finished before the cancel landed
			return canceled(ctx)
		}

		select {
		case <-changed:
		case <-grace.C:
			b.log.Warn("Download of %s did not confirm cancellation within %s", dl.URL(), b.opts.AbortGrace)
			return canceled(ctx)
		}
	}
}

func interrupted(dl browser.Download) error {
	reason := dl.InterruptReason()

	var err error
	switch reason {
	case browser.InterruptUserCanceled:
		err = domain.ErrDownloadCanceled
	case browser.InterruptNetworkTimeout:
		err = domain.ErrDownloadTimeout
	default:
		err = domain.ErrDownloadError
	}

	return &domain.InterruptedError{URL: dl.URL(), Reason: reason.String(), Err: err}
}
