// Package scanner discovers project directories in the Claude
// Code store and recovers the real filesystem path each one was
// created for.
package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/morphaven/claude-recontext/internal/pathcodec"
	"github.com/morphaven/claude-recontext/internal/rewrite"
)

const (
	// cwdProbeLines bounds how many lines of each log are read
	// when looking for a working directory.
	cwdProbeLines   = 20
	maxProbeLineLen = 20 * 1024 * 1024 // 20MB
	subagentsDir    = "subagents"
)

var uuidDirRe = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
)

// Source identifies where a recovered path came from.
type Source int

const (
	SourceNone Source = iota
	SourceIndex
	SourceRootLog
	SourceSessionLog
	SourceSubagentLog
)

func (s Source) String() string {
	switch s {
	case SourceIndex:
		return "index"
	case SourceRootLog:
		return "log"
	case SourceSessionLog:
		return "session log"
	case SourceSubagentLog:
		return "subagent log"
	default:
		return "none"
	}
}

// Status is the outcome of one discovery attempt.
type Status int

const (
	NotFound Status = iota
	Found
	// Malformed means a source existed but could not be read as
	// JSON. The cascade treats it like NotFound.
	Malformed
)

// Lookup is the result of probing a single discovery source.
type Lookup struct {
	Path   string
	Source Source
	Status Status
}

// Existence is a tri-state "is the project still on disk".
type Existence int

const (
	ExistsUnknown Existence = iota
	ExistsYes
	ExistsNo
)

func (e Existence) String() string {
	switch e {
	case ExistsYes:
		return "yes"
	case ExistsNo:
		return "no"
	default:
		return "unknown"
	}
}

// ProjectRecord describes one project directory in the store.
type ProjectRecord struct {
	EncodedName  string
	DirPath      string
	ResolvedPath string
	Source       Source
	Exists       Existence
}

// Recovered reports whether ResolvedPath came from the project's
// own data rather than from decoding the directory name.
func (p ProjectRecord) Recovered() bool {
	return p.ResolvedPath != ""
}

// Path returns the recovered path, or the decoded estimate when
// nothing could be recovered.
func (p ProjectRecord) Path() string {
	if p.ResolvedPath != "" {
		return p.ResolvedPath
	}
	return pathcodec.Decode(p.EncodedName)
}

// Scanner reads a project store rooted at projectsDir.
type Scanner struct {
	projectsDir string
	// statPath is replaceable in tests.
	statPath func(string) (os.FileInfo, error)
}

// New returns a Scanner for the store at projectsDir.
func New(projectsDir string) *Scanner {
	return &Scanner{projectsDir: projectsDir, statPath: os.Stat}
}

// ProjectsDir returns the store root.
func (s *Scanner) ProjectsDir() string { return s.projectsDir }

// ListAll returns a record for every directory under the store
// root, in directory order. A missing or unreadable root yields
// an empty list.
func (s *Scanner) ListAll() []ProjectRecord {
	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		return nil
	}

	var records []ProjectRecord
	for _, entry := range entries {
		if !isDirOrSymlink(entry, s.projectsDir) {
			continue
		}
		dir := filepath.Join(s.projectsDir, entry.Name())
		rec := ProjectRecord{
			EncodedName: entry.Name(),
			DirPath:     dir,
		}
		if lk := s.ResolveRealPath(dir); lk.Status == Found {
			rec.ResolvedPath = lk.Path
			rec.Source = lk.Source
			rec.Exists = s.existence(lk.Path)
		}
		records = append(records, rec)
	}
	return records
}

func (s *Scanner) existence(path string) Existence {
	if _, err := s.statPath(path); err != nil {
		return ExistsNo
	}
	return ExistsYes
}

// DirectoryExistsFor reports whether the store holds a directory
// named encodedName.
func (s *Scanner) DirectoryExistsFor(encodedName string) bool {
	if encodedName == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(s.projectsDir, encodedName))
	return err == nil && info.IsDir()
}

// ProjectDir returns the store location for encodedName.
func (s *Scanner) ProjectDir(encodedName string) string {
	return filepath.Join(s.projectsDir, encodedName)
}

// Broken returns the projects whose recovered path no longer
// exists on disk.
func (s *Scanner) Broken() []ProjectRecord {
	var broken []ProjectRecord
	for _, rec := range s.ListAll() {
		if rec.Exists == ExistsNo {
			broken = append(broken, rec)
		}
	}
	return broken
}

// ResolveRealPath recovers the absolute path projectDir was
// created for. Sources are tried in order: the sessions index,
// logs at the project root, logs in UUID session directories,
// then logs in their subagents directories. Read and parse
// errors fall through to the next source.
func (s *Scanner) ResolveRealPath(projectDir string) Lookup {
	if lk := lookupIndex(projectDir); lk.Status == Found {
		return lk
	}
	if lk := lookupLogsIn(projectDir, SourceRootLog); lk.Status == Found {
		return lk
	}

	sessions := uuidDirs(projectDir)
	for _, dir := range sessions {
		if lk := lookupLogsIn(dir, SourceSessionLog); lk.Status == Found {
			return lk
		}
	}
	for _, dir := range sessions {
		sub := filepath.Join(dir, subagentsDir)
		if lk := lookupLogsIn(sub, SourceSubagentLog); lk.Status == Found {
			return lk
		}
	}
	return Lookup{}
}

// lookupIndex reads originalPath, else the first entry carrying
// a projectPath.
func lookupIndex(projectDir string) Lookup {
	data, err := os.ReadFile(filepath.Join(projectDir, rewrite.IndexFileName))
	if err != nil {
		return Lookup{Source: SourceIndex}
	}
	if !gjson.ValidBytes(data) {
		return Lookup{Source: SourceIndex, Status: Malformed}
	}
	doc := gjson.ParseBytes(data)

	if p := doc.Get("originalPath"); p.Type == gjson.String && p.Str != "" {
		return Lookup{Path: p.Str, Source: SourceIndex, Status: Found}
	}
	var found string
	doc.Get("entries").ForEach(func(_, entry gjson.Result) bool {
		p := entry.Get("projectPath")
		if p.Type == gjson.String && p.Str != "" {
			found = p.Str
			return false
		}
		return true
	})
	if found != "" {
		return Lookup{Path: found, Source: SourceIndex, Status: Found}
	}
	return Lookup{Source: SourceIndex}
}

// lookupLogsIn tries every .jsonl file directly inside dir.
func lookupLogsIn(dir string, src Source) Lookup {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Lookup{Source: src}
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		if cwd := cwdFromLog(filepath.Join(dir, entry.Name())); cwd != "" {
			return Lookup{Path: cwd, Source: src, Status: Found}
		}
	}
	return Lookup{Source: src}
}

// cwdFromLog returns the first cwd (top-level or snapshot.cwd)
// among the first lines of a log.
func cwdFromLog(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	lr := rewrite.NewLineReader(f)
	lr.MaxLen = maxProbeLineLen
	for n := 0; n < cwdProbeLines && lr.Next(); n++ {
		if lr.Oversized() {
			continue
		}
		line := lr.Line()
		if !gjson.Valid(line) {
			continue
		}
		res := gjson.GetMany(line, "cwd", "snapshot.cwd")
		for _, r := range res {
			if r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	return ""
}

// uuidDirs lists the session subdirectories of projectDir.
func uuidDirs(projectDir string) []string {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if !uuidDirRe.MatchString(entry.Name()) {
			continue
		}
		if !isDirOrSymlink(entry, projectDir) {
			continue
		}
		dirs = append(dirs, filepath.Join(projectDir, entry.Name()))
	}
	return dirs
}

// isDirOrSymlink reports whether the entry is a directory or a
// symlink that resolves to a directory. parentDir is needed to
// build the full path for symlink resolution.
func isDirOrSymlink(
	entry os.DirEntry, parentDir string,
) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(
		filepath.Join(parentDir, entry.Name()),
	)
	return err == nil && fi.IsDir()
}
