package platform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// BrowserBinaries lists the executables tried, in order, when no browser
// path is configured.
var BrowserBinaries = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"msedge",
}

// ErrBrowserNotFound is returned when no Chromium-based browser is available.
var ErrBrowserNotFound = errors.New("no chromium-based browser found")

var lookPath = exec.LookPath

// FindBrowser returns the browser executable to drive. A configured path
// wins; otherwise the first entry of BrowserBinaries found in PATH is used.
func FindBrowser(configured string) (string, error) {
	if configured != "" {
		info, err := os.Stat(configured)
		if err != nil {
			return "", fmt.Errorf("configured browser %s: %w", configured, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("configured browser %s is a directory", configured)
		}
		return configured, nil
	}

	for _, bin := range BrowserBinaries {
		if p, err := lookPath(bin); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w in PATH (tried %v); set browser.exec_path", ErrBrowserNotFound, BrowserBinaries)
}

// ValidateDependencies fails when the sync commands would have no browser.
func ValidateDependencies(configured string) error {
	_, err := FindBrowser(configured)
	return err
}
