// Package testjsonl provides shared fixture builders for Claude
// Code store data: session log lines, sessions-index.json
// documents and on-disk project layouts. Used by the rewrite,
// scanner and migrate test packages.
package testjsonl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ClaudeUserJSON returns a Claude user message as a JSON string.
func ClaudeUserJSON(
	content, timestamp string, cwd ...string,
) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": content,
		},
	}
	if len(cwd) > 0 {
		m["cwd"] = cwd[0]
	}
	return mustMarshal(m)
}

// ClaudeAssistantJSON returns a Claude assistant message as a
// JSON string.
func ClaudeAssistantJSON(content any, timestamp string) string {
	m := map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": content,
		},
	}
	return mustMarshal(m)
}

// ClaudeSnapshotJSON returns a file-history snapshot line whose
// working directory is nested under snapshot.cwd.
func ClaudeSnapshotJSON(timestamp, cwd string) string {
	m := map[string]any{
		"type": "file-history-snapshot",
		"snapshot": map[string]any{
			"timestamp": timestamp,
			"cwd":       cwd,
		},
	}
	return mustMarshal(m)
}

// ClaudeToolResultJSON returns a user line carrying a tool
// result whose text mentions path, the way Read/Bash output
// embeds absolute paths in prose.
func ClaudeToolResultJSON(timestamp, path string) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": []map[string]any{{
				"type":        "tool_result",
				"tool_use_id": "toolu_1",
				"content":     "Contents of " + path + "/README.md",
			}},
		},
	}
	return mustMarshal(m)
}

// HistoryJSON returns a global history.jsonl entry.
func HistoryJSON(display, project string, timestamp int64) string {
	return mustMarshal(map[string]any{
		"display":   display,
		"project":   project,
		"timestamp": timestamp,
	})
}

// IndexEntry is one sessions-index.json entry.
type IndexEntry struct {
	SessionID   string `json:"sessionId,omitempty"`
	FullPath    string `json:"fullPath,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
	FirstPrompt string `json:"firstPrompt,omitempty"`
}

// SessionsIndexJSON returns a sessions-index.json document in the
// two-space layout Claude Code writes, with a trailing newline.
func SessionsIndexJSON(originalPath string, entries ...IndexEntry) string {
	doc := struct {
		Version      int          `json:"version"`
		OriginalPath string       `json:"originalPath,omitempty"`
		Entries      []IndexEntry `json:"entries"`
	}{Version: 1, OriginalPath: originalPath, Entries: entries}
	if doc.Entries == nil {
		doc.Entries = []IndexEntry{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b) + "\n"
}

// JoinJSONL joins lines with newlines and adds a trailing newline.
func JoinJSONL(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// WriteFile writes content to dir/rel, creating parent
// directories, and returns the full path.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
