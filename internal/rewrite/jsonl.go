package rewrite

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LogResult describes the outcome of rewriting one JSONL log.
type LogResult struct {
	Path         string
	Changed      bool
	Lines        int
	LinesChanged int
	// BackupPath holds the pre-rewrite file when the rewrite was
	// asked to keep one and the file changed.
	BackupPath string
}

// RewriteLog replaces oldPath with newPath in every line of the
// JSONL file at filePath. The file is streamed line by line into
// a sibling temporary file which replaces the original only if
// some line changed. Lines without a match are copied byte for
// byte; matching lines are parsed and re-serialized compactly with
// every string value rewritten, or substituted as raw text when
// they are not valid JSON.
func RewriteLog(filePath, oldPath, newPath string) (LogResult, error) {
	return rewriteLog(filePath, NewReplacer(oldPath, newPath), false)
}

// RewriteLogWithBackup is RewriteLog but keeps the original file
// at filePath+BackupSuffix when it changes, so the caller can roll
// back with RestoreBackup or commit with DiscardBackup.
func RewriteLogWithBackup(
	filePath, oldPath, newPath string,
) (LogResult, error) {
	return rewriteLog(filePath, NewReplacer(oldPath, newPath), true)
}

func rewriteLog(
	filePath string, rep *Replacer, keepBackup bool,
) (res LogResult, err error) {
	res.Path = filePath

	src, err := os.Open(filePath)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", filePath, err)
	}

	tmp, err := createSibling(filePath)
	if err != nil {
		return res, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriterSize(tmp, initialReadBufSize)
	lr := NewLineReader(src)
	for lr.Next() {
		line := lr.Line()
		out := rewriteLine(line, rep)
		res.Lines++
		if out != line {
			res.LinesChanged++
		}
		if _, err := w.WriteString(out); err != nil {
			return res, fmt.Errorf("writing %s: %w", tmpPath, err)
		}
		if _, err := w.WriteString(lr.EOL()); err != nil {
			return res, fmt.Errorf("writing %s: %w", tmpPath, err)
		}
	}
	if err := lr.Err(); err != nil {
		return res, fmt.Errorf("reading %s: %w", filePath, err)
	}

	if res.LinesChanged == 0 {
		return res, nil
	}

	if err := w.Flush(); err != nil {
		return res, fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	_ = tmp.Chmod(info.Mode().Perm())
	if err := tmp.Close(); err != nil {
		return res, fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	src.Close()

	if keepBackup {
		backup := filePath + BackupSuffix
		if err := swapWithBackup(tmpPath, filePath, backup); err != nil {
			return res, err
		}
		res.BackupPath = backup
	} else if err := replaceFile(tmpPath, filePath); err != nil {
		return res, err
	}
	committed = true
	res.Changed = true
	return res, nil
}

// rewriteLine returns line with the old path replaced. Lines that
// cannot contain a match are returned untouched without parsing.
func rewriteLine(line string, rep *Replacer) string {
	if !rep.Contains(line) {
		return line
	}
	v, ok := ParseValue(line)
	if !ok {
		return rep.Replace(line)
	}
	if !v.MapStrings(rep.Replace) {
		return line
	}
	return string(v.AppendJSON(make([]byte, 0, len(line))))
}

// ScanLogForMatch reports whether any line of filePath contains
// a spelling of oldPath. It stops at the first match and writes
// nothing.
func ScanLogForMatch(filePath, oldPath string) (bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	rep := NewReplacer(oldPath, oldPath)
	lr := NewLineReader(f)
	for lr.Next() {
		if rep.Contains(lr.Line()) {
			return true, nil
		}
	}
	if err := lr.Err(); err != nil {
		return false, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return false, nil
}

// ScanLogForResidue is ScanLogForMatch for verification after a
// rewrite: spellings of newPath are masked first, so a new path
// that contains the old one is not reported as a residue.
func ScanLogForResidue(filePath, oldPath, newPath string) (bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	old, mask := residueReplacers(oldPath, newPath)
	lr := NewLineReader(f)
	for lr.Next() {
		if hasResidue(lr.Line(), old, mask) {
			return true, nil
		}
	}
	if err := lr.Err(); err != nil {
		return false, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return false, nil
}

// residueReplacers returns a matcher for oldPath and, when
// newPath contains oldPath, a replacer that blanks out newPath.
func residueReplacers(oldPath, newPath string) (old, mask *Replacer) {
	old = NewReplacer(oldPath, oldPath)
	if old.Contains(newPath) {
		mask = NewReplacer(newPath, "\x00")
	}
	return old, mask
}

func hasResidue(s string, old, mask *Replacer) bool {
	if !old.Contains(s) {
		return false
	}
	if mask == nil {
		return true
	}
	return old.Contains(mask.Replace(s))
}

// FindFiles returns every regular file under dir whose name ends
// in one of exts, in lexical order. A symlinked dir is followed;
// returned paths keep dir as their prefix. Unreadable or missing
// directories contribute nothing.
func FindFiles(dir string, exts ...string) []string {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil
	}
	var files []string
	_ = filepath.WalkDir(root,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip inaccessible entries
			}
			if d.IsDir() {
				return nil
			}
			for _, ext := range exts {
				if strings.HasSuffix(d.Name(), ext) {
					rel, err := filepath.Rel(root, path)
					if err != nil {
						return nil
					}
					files = append(files, filepath.Join(dir, rel))
					break
				}
			}
			return nil
		})
	return files
}

// FindLogFiles returns every .jsonl file under dir.
func FindLogFiles(dir string) []string {
	return FindFiles(dir, ".jsonl")
}
