package rewrite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// BackupSuffix is appended to a log's path while its original
// content is kept for rollback.
const BackupSuffix = ".recontext-bak"

// createSibling creates a temporary file next to target so the
// final rename stays on one filesystem.
func createSibling(target string) (*os.File, error) {
	return os.CreateTemp(
		filepath.Dir(target), filepath.Base(target)+".tmp.*",
	)
}

// WriteFileAtomic writes data to a sibling temporary file and
// renames it over path. A crash mid-write leaves path untouched.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := createSibling(path)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(perm); err != nil && runtime.GOOS != "windows" {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := replaceFile(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// replaceFile renames src over dst. Where a rename cannot replace
// an existing file the target is removed first.
func replaceFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if runtime.GOOS != "windows" {
		return fmt.Errorf("renaming %s: %w", src, err)
	}
	if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", dst, rmErr)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("renaming %s: %w", src, err)
	}
	return nil
}

// swapWithBackup moves target aside to backup and renames src
// into its place. If the second rename fails the original is put
// back.
func swapWithBackup(src, target, backup string) error {
	if _, err := os.Lstat(backup); err == nil {
		return fmt.Errorf(
			"stale backup %s exists; inspect and remove it first",
			backup,
		)
	}
	if err := os.Rename(target, backup); err != nil {
		return fmt.Errorf("backing up %s: %w", target, err)
	}
	if err := os.Rename(src, target); err != nil {
		if rerr := os.Rename(backup, target); rerr != nil {
			return errors.Join(
				fmt.Errorf("replacing %s: %w", target, err),
				fmt.Errorf("restoring %s: %w", target, rerr),
			)
		}
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}

// RestoreBackup puts a backup taken by RewriteLogWithBackup back
// in place of path.
func RestoreBackup(path, backup string) error {
	return replaceFile(backup, path)
}

// DiscardBackup removes a backup once the rewrite is committed.
// A missing backup is not an error.
func DiscardBackup(backup string) error {
	err := os.Remove(backup)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
