package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mirrorbox/mirrord/internal/utils"
)

// SymlinkPolicy controls how the scanner treats symbolic links.
type SymlinkPolicy string

const (
	// SymlinkSkip ignores symlinks entirely, logging a warning per link.
	// This is the only implemented policy; following links would require
	// cycle detection over resolved inodes.
	SymlinkSkip SymlinkPolicy = "skip"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".mirrord", "config.json")
	DefaultLogFile    = filepath.Join(home, ".mirrord", "logs", "mirrord.log")
	DefaultInterval   = 30
)

type Config struct {
	SourceDir     string        `json:"source_dir"`
	ReplicaDir    string        `json:"replica_dir"`
	Interval      int           `json:"interval"`
	LogFile       string        `json:"log_file"`
	MaxWorkers    int           `json:"max_workers"`
	SymlinkPolicy SymlinkPolicy `json:"symlink_policy"`
	Watch         bool          `json:"watch"`
	Path          string        `json:"-"`
}

// SyncInterval returns the pass interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Validate normalizes paths and applies defaults. The source must already
// exist as a directory; the replica is created later, just before the first
// scan, so it is only checked for being distinct from the source.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source dir is required")
	}
	if c.ReplicaDir == "" {
		return fmt.Errorf("replica dir is required")
	}

	srcPath, err := utils.ResolvePath(c.SourceDir)
	if err != nil {
		return fmt.Errorf("resolve source dir %q: %w", c.SourceDir, err)
	}
	c.SourceDir = srcPath

	dstPath, err := utils.ResolvePath(c.ReplicaDir)
	if err != nil {
		return fmt.Errorf("resolve replica dir %q: %w", c.ReplicaDir, err)
	}
	c.ReplicaDir = dstPath

	if !utils.DirExists(c.SourceDir) {
		return fmt.Errorf("source dir %q does not exist or is not a directory", c.SourceDir)
	}
	if c.SourceDir == c.ReplicaDir {
		return fmt.Errorf("source and replica dirs must differ")
	}

	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must be a positive number of seconds, got %d", c.Interval)
	}

	if c.MaxWorkers == 0 {
		c.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers)
	}

	if c.SymlinkPolicy == "" {
		c.SymlinkPolicy = SymlinkSkip
	}
	if c.SymlinkPolicy != SymlinkSkip {
		return fmt.Errorf("unsupported symlink policy %q", c.SymlinkPolicy)
	}

	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}

	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return &cfg, nil
}
