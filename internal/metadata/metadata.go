// Package metadata extracts the Package Identity from an addon page.
package metadata

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/datallboy/addonsync/internal/domain"
)

// Script returns the page's embedded metadata document as text.
const Script = `(() => { const el = document.getElementById('__NEXT_DATA__'); return el ? el.textContent : ''; })()`

type document struct {
	Props struct {
		PageProps struct {
			Project *struct {
				ID       uint64 `json:"id"`
				MainFile *struct {
					ID         uint64 `json:"id"`
					FileName   string `json:"fileName"`
					FileLength uint64 `json:"fileLength"`
				} `json:"mainFile"`
			} `json:"project"`
		} `json:"pageProps"`
	} `json:"props"`
}

// Parse reads the metadata document returned by Script.
func Parse(raw string) (domain.PackageIdentity, error) {
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.PackageIdentity{}, fmt.Errorf("%w: %v", domain.ErrMetadataParse, err)
	}

	project := doc.Props.PageProps.Project
	if project == nil {
		return domain.PackageIdentity{}, fmt.Errorf("%w: no project", domain.ErrMetadataParse)
	}
	if project.MainFile == nil {
		return domain.PackageIdentity{}, fmt.Errorf("%w: project %d has no main file", domain.ErrMetadataParse, project.ID)
	}

	file := project.MainFile
	name := strings.TrimSpace(file.FileName)
	if project.ID == 0 || file.ID == 0 || name == "" {
		return domain.PackageIdentity{}, fmt.Errorf("%w: incomplete main file for project %d", domain.ErrMetadataParse, project.ID)
	}

	// The file name becomes a path inside the download and cache directories
	if name != path.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return domain.PackageIdentity{}, fmt.Errorf("%w: unsafe file name %q", domain.ErrMetadataParse, name)
	}

	return domain.PackageIdentity{
		ProjectID: project.ID,
		FileID:    file.ID,
		FileName:  name,
		Size:      file.FileLength,
	}, nil
}

// AddonName is the last path segment of an addon page URL.
func AddonName(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: url %q: %w", domain.ErrInvalidAddon, pageURL, err)
	}

	name := path.Base(strings.TrimRight(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: url %q has no name segment", domain.ErrInvalidAddon, pageURL)
	}
	return name, nil
}
