package rewrite

import (
	"fmt"
	"os"
)

// TextResult describes the outcome of rewriting a whole file.
type TextResult struct {
	Path    string
	Changed bool
	// Prior holds the content before the rewrite, for undo.
	Prior []byte
}

// RewriteTextBlob replaces oldPath with newPath in a small
// free-form text file (memory notes and the like). The file is
// read whole and written back atomically only when it changed.
func RewriteTextBlob(filePath, oldPath, newPath string) (TextResult, error) {
	res := TextResult{Path: filePath}
	info, err := os.Stat(filePath)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", filePath, err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", filePath, err)
	}

	orig := string(data)
	out := ReplaceAll(orig, oldPath, newPath)
	if out == orig {
		return res, nil
	}
	if err := WriteFileAtomic(filePath, []byte(out), info.Mode().Perm()); err != nil {
		return res, err
	}
	res.Changed = true
	res.Prior = data
	return res, nil
}

// ScanTextForMatch reports whether filePath contains any spelling
// of oldPath.
func ScanTextForMatch(filePath, oldPath string) (bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", filePath, err)
	}
	return NewReplacer(oldPath, oldPath).Contains(string(data)), nil
}

// ScanTextForResidue reports whether filePath still contains
// oldPath once spellings of newPath are masked.
func ScanTextForResidue(filePath, oldPath, newPath string) (bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", filePath, err)
	}
	old, mask := residueReplacers(oldPath, newPath)
	return hasResidue(string(data), old, mask), nil
}

// RestoreContent writes prior back to path atomically.
func RestoreContent(path string, prior []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return WriteFileAtomic(path, prior, perm)
}
