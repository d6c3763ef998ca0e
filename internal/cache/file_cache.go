// Package cache keeps one archive per addon in a private directory.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileCache stores blobs under Dir, named by their file name.
type FileCache struct {
	Dir string
}

func (f *FileCache) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// Exists reports whether a regular file named name is present.
func (f *FileCache) Exists(name string) bool {
	info, err := os.Stat(f.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Put copies src into the cache. The copy lands in a temp file first and is
// renamed into place so readers never see a partial archive.
func (f *FileCache) Put(name, src string) error {
	// Ensure the directory exists
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}

	dst := f.Path(name)
	if same, _ := sameFile(src, dst); same {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(f.Dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy %s into cache: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (f *FileCache) Remove(name string) error {
	err := os.Remove(f.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear removes every blob but keeps the directory.
func (f *FileCache) Clear() error {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.Dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
