package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration.
type Config struct {
	ClaudeDir   string `json:"claude_dir"`
	ProjectsDir string `json:"projects_dir"`
	HistoryFile string `json:"history_file"`
	DataDir     string `json:"data_dir"`
	JournalPath string `json:"-"`
	LogPath     string `json:"-"`
	LockPath    string `json:"-"`
}

// Default returns a Config with default values. ProjectsDir and
// HistoryFile are left empty and derived from ClaudeDir once all
// layers are applied.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	return Config{
		ClaudeDir: filepath.Join(home, ".claude"),
		DataDir:   filepath.Join(home, ".recontext"),
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
// ProjectsDir and HistoryFile follow the Claude directory of the
// highest layer that sets one, unless that layer or a later one
// sets them explicitly.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	// The data dir decides where config.json lives, so its
	// overrides apply first.
	if v := os.Getenv("RECONTEXT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	applyFlags(&cfg, fs)
	cfg.derive()
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		ClaudeDir   string `json:"claude_dir"`
		ProjectsDir string `json:"projects_dir"`
		HistoryFile string `json:"history_file"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	c.applyLayer(file.ClaudeDir, file.ProjectsDir, file.HistoryFile)
	return nil
}

func (c *Config) loadEnv() {
	c.applyLayer(
		os.Getenv("CLAUDE_CONFIG_DIR"),
		os.Getenv("CLAUDE_PROJECTS_DIR"),
		"",
	)
}

// applyLayer overrides the store location with the non-empty
// values of one layer. Setting the Claude directory drops store
// paths pinned by lower layers so they follow it, unless the
// same layer pins them again.
func (c *Config) applyLayer(claudeDir, projectsDir, historyFile string) {
	if claudeDir != "" {
		c.ClaudeDir = claudeDir
		c.ProjectsDir = ""
		c.HistoryFile = ""
	}
	if projectsDir != "" {
		c.ProjectsDir = projectsDir
	}
	if historyFile != "" {
		c.HistoryFile = historyFile
	}
}

// derive fills in paths that default relative to ClaudeDir and
// DataDir.
func (c *Config) derive() {
	if c.ProjectsDir == "" {
		c.ProjectsDir = filepath.Join(c.ClaudeDir, "projects")
	}
	if c.HistoryFile == "" {
		c.HistoryFile = filepath.Join(c.ClaudeDir, "history.jsonl")
	}
	c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	c.LogPath = filepath.Join(c.DataDir, "recontext.log")
	c.LockPath = filepath.Join(c.DataDir, "recontext.lock")
}

// RegisterStoreFlags registers the flags that relocate the store
// on fs. The caller must call fs.Parse before passing fs to Load.
func RegisterStoreFlags(fs *flag.FlagSet) {
	fs.String(
		"claude-dir", "",
		"Claude Code config directory (default ~/.claude)",
	)
	fs.String(
		"projects-dir", "",
		"Project store directory (default <claude-dir>/projects)",
	)
	fs.String(
		"history-file", "",
		"Global history log (default <claude-dir>/history.jsonl)",
	)
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	set := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = f.Value.String()
	})
	cfg.applyLayer(set["claude-dir"], set["projects-dir"], set["history-file"])
}
