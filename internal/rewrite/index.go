package rewrite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// IndexFileName is the per-project metadata document.
const IndexFileName = "sessions-index.json"

// IndexResult describes the outcome of rewriting a project's
// sessions-index.json.
type IndexResult struct {
	Path    string
	Changed bool
	Prior   []byte
}

// IndexPath returns the location of projectDir's index.
func IndexPath(projectDir string) string {
	return filepath.Join(projectDir, IndexFileName)
}

// RewriteIndexData applies the index rewrite to data without
// touching disk. changed reports whether any path-bearing field
// took a new value; when it is false out is nil and the index
// needs no write. Documents that are not JSON objects are never
// changed.
func RewriteIndexData(
	data []byte, oldPath, newPath, oldEncoded, newEncoded string,
) (out []byte, changed bool) {
	doc, ok := ParseValue(string(data))
	if !ok || doc.Kind != KindObject {
		return nil, false
	}

	paths := NewReplacer(oldPath, newPath)
	names := NewReplacer(oldEncoded, newEncoded)
	set := func(v *Value, r *Replacer) {
		if v.Kind != KindString {
			return
		}
		if s := r.Replace(v.Str); s != v.Str {
			v.Str = s
			changed = true
		}
	}

	if v, ok := doc.Get("originalPath"); ok {
		set(v, paths)
	}
	if entries, ok := doc.Get("entries"); ok && entries.Kind == KindArray {
		for i := range entries.Items {
			entry := &entries.Items[i]
			if v, ok := entry.Get("projectPath"); ok {
				set(v, paths)
			}
			if v, ok := entry.Get("fullPath"); ok {
				set(v, names)
			}
		}
	}
	if !changed {
		return nil, false
	}
	out = doc.AppendIndentJSON(nil, "  ")
	return append(out, '\n'), true
}

// RewriteIndex updates the path-bearing fields of the
// sessions-index.json in projectDir. originalPath and each
// entries[].projectPath are rewritten oldPath -> newPath;
// entries[].fullPath holds a store location and is rewritten
// oldEncoded -> newEncoded instead. All other fields are kept
// in order. The file is only written when one of those fields
// changes; a missing or unparsable index is reported unchanged.
func RewriteIndex(
	projectDir, oldPath, newPath, oldEncoded, newEncoded string,
) (IndexResult, error) {
	path := IndexPath(projectDir)
	res := IndexResult{Path: path}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	out, changed := RewriteIndexData(
		data, oldPath, newPath, oldEncoded, newEncoded,
	)
	if !changed {
		return res, nil
	}
	if err := WriteFileAtomic(path, out, info.Mode().Perm()); err != nil {
		return res, err
	}
	res.Changed = true
	res.Prior = data
	return res, nil
}
