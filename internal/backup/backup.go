// Package backup keeps an xz-compressed copy of a database before it is
// overwritten.
package backup

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ulikunitz/xz"
)

// Suffix ends every backup file name
const Suffix = ".bak.xz"

// Create compresses the file at path next to it, named after now, and
// returns the backup path
func Create(path string, now time.Time) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for backup: %w", path, err)
	}
	defer src.Close()

	backupPath := fmt.Sprintf("%s.%s%s", path, now.UTC().Format("20060102T150405Z"), Suffix)
	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	if err := compress(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return backupPath, nil
}

func compress(dst io.Writer, src io.Reader) error {
	w, err := xz.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
