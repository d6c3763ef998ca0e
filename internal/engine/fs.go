package engine

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// renameDir swaps whole directories during apply
var renameDir = os.Rename

// moveFile handles the logic of moving a file, falling back to cross-device copy if rename fails.
func moveFile(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	// Try simple rename first
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}

	// If it fails (likely cross-device), use our helper
	return moveCrossDevice(source, dest)
}

// moveCrossDevice handles moving files between different mount points/filesystems
func moveCrossDevice(sourcePath, destPath string) error {
	if err := copyFile(sourcePath, destPath); err != nil {
		return err
	}

	// Remove the original file only after copy success
	return os.Remove(sourcePath)
}

// copyFile writes to a hidden temp file next to destPath and renames it
// into place once the data is synced.
func copyFile(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.OpenFile(tempDest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	// io.Copy uses copy_file_range/sendfile where available
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tempDest)
		return err
	}

	if err := os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}
	return nil
}

// clearDir empties dir, creating it when missing.
func clearDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dir, err)
		}
	}
	return nil
}

// moveContents moves every top level entry of srcDir into dstDir.
func moveContents(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		src := filepath.Join(srcDir, e.Name())
		dst := filepath.Join(dstDir, e.Name())

		if err := os.Rename(src, dst); err == nil {
			continue
		}

		// Cross-device: copy the tree, then drop the source
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("failed to move %s: %w", e.Name(), err)
		}
		if err := os.RemoveAll(src); err != nil {
			return err
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}
