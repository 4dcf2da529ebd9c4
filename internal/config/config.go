package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Ning0612/deduplify/internal/core/checksum"
	"github.com/Ning0612/deduplify/internal/core/retention"
	"github.com/Ning0612/deduplify/internal/core/walker"
	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
)

const (
	// DefaultIndexFile is the index used when none is given
	DefaultIndexFile = "file_hashes.db"
	// DefaultLogFile receives logs unless output is verbose
	DefaultLogFile = "deduplify.log"
	// DefaultFlushEvery bounds how many inserts the JSON index buffers
	DefaultFlushEvery = 1000
)

// Config is the file/env layer. Subcommands turn it into their own
// tagged configuration after flags are applied.
type Config struct {
	// Index is the path of the persisted index (.json or SQLite)
	Index string `mapstructure:"index"`

	// Concurrency is the worker count for hashing and purging
	Concurrency int `mapstructure:"concurrency"`

	Hash    HashSettings    `mapstructure:"hash"`
	Compare CompareSettings `mapstructure:"compare"`
	Log     LogSettings     `mapstructure:"log"`
}

// HashSettings holds defaults for the hash subcommand
type HashSettings struct {
	Extensions []string `mapstructure:"extensions"`
	SkipMode   string   `mapstructure:"skip_mode"`
	Algorithm  string   `mapstructure:"algorithm"`
	FlushEvery int      `mapstructure:"flush_every"`
}

// CompareSettings holds defaults for the compare subcommand
type CompareSettings struct {
	Strategy string `mapstructure:"strategy"`
}

// LogSettings configures logging
type LogSettings struct {
	Level            string   `mapstructure:"level"`
	Format           string   `mapstructure:"format"`
	File             string   `mapstructure:"file"`
	MaxSizeMB        int      `mapstructure:"max_size_mb"`
	MaxAgeDays       int      `mapstructure:"max_age_days"`
	MaxBackups       int      `mapstructure:"max_backups"`
	Compress         bool     `mapstructure:"compress"`
	MaskPersonalData bool     `mapstructure:"mask_personal_data"`
	MaskPatterns     []string `mapstructure:"mask_patterns"` // regular expressions masked in every line
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Index:       DefaultIndexFile,
		Concurrency: runtime.NumCPU(),
		Hash: HashSettings{
			Extensions: []string{"*"},
			SkipMode:   string(walker.SkipByName),
			Algorithm:  string(checksum.MD5),
			FlushEvery: DefaultFlushEvery,
		},
		Compare: CompareSettings{
			Strategy: retention.DefaultStrategy,
		},
		Log: LogSettings{
			Level:      "info",
			Format:     "text",
			File:       DefaultLogFile,
			MaxSizeMB:  10,
			MaxAgeDays: 30,
			MaxBackups: 3,
		},
	}
}

// Validate checks the file-level values that do not depend on a subcommand
func (c *Config) Validate() error {
	if c.Index == "" {
		return fmt.Errorf("%w: index path cannot be empty", domain.ErrConfigInvalid)
	}
	if _, err := walker.ParseSkipMode(c.Hash.SkipMode); err != nil {
		return err
	}
	if !checksum.IsSupported(checksum.Algorithm(c.Hash.Algorithm)) {
		return fmt.Errorf("%w: unsupported algorithm: %s", domain.ErrConfigInvalid, c.Hash.Algorithm)
	}
	if c.Hash.FlushEvery < 0 {
		return fmt.Errorf("%w: flush_every cannot be negative", domain.ErrConfigInvalid)
	}
	if _, err := retention.ForName(c.Compare.Strategy); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if _, err := logger.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	masks := logger.NewSanitizer()
	for _, p := range c.Log.MaskPatterns {
		if err := masks.AddRule(p, logger.MaskReplacement); err != nil {
			return fmt.Errorf("%w: log.mask_patterns: %v", domain.ErrConfigInvalid, err)
		}
	}
	return nil
}

// HashConfig is the validated input of one hash run
type HashConfig struct {
	Root        string
	Index       string
	Concurrency int
	// Restart resumes from an existing index instead of replacing it
	Restart    bool
	Extensions []string
	SkipMode   walker.SkipMode
	Algorithm  checksum.Algorithm
	FlushEvery int
}

// Validate checks a hash run before any work starts
func (c HashConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: directory to hash is required", domain.ErrConfigInvalid)
	}
	if c.Index == "" {
		return fmt.Errorf("%w: index path cannot be empty", domain.ErrConfigInvalid)
	}
	if err := walker.ValidateConcurrency(c.Concurrency); err != nil {
		return err
	}
	if !c.SkipMode.IsValid() {
		return fmt.Errorf("%w: unknown skip mode: %s", domain.ErrConfigInvalid, c.SkipMode)
	}
	if !checksum.IsSupported(c.Algorithm) {
		return fmt.Errorf("%w: unsupported algorithm: %s", domain.ErrConfigInvalid, c.Algorithm)
	}
	if c.FlushEvery < 0 {
		return fmt.Errorf("%w: flush interval cannot be negative", domain.ErrConfigInvalid)
	}
	return nil
}

// CompareConfig is the validated input of one compare run
type CompareConfig struct {
	Index       string
	Concurrency int
	// ApplyDeletions purges the files the strategy marks for deletion
	ApplyDeletions bool
	Strategy       string
}

// Validate checks a compare run before any work starts
func (c CompareConfig) Validate() error {
	if c.Index == "" {
		return fmt.Errorf("%w: index path cannot be empty", domain.ErrConfigInvalid)
	}
	if err := walker.ValidateConcurrency(c.Concurrency); err != nil {
		return err
	}
	if _, err := retention.ForName(c.Strategy); err != nil {
		return err
	}
	return nil
}

// CleanConfig is the validated input of one clean run
type CleanConfig struct {
	Root   string
	DryRun bool
}

// Validate checks a clean run
func (c CleanConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: directory to clean is required", domain.ErrConfigInvalid)
	}
	return nil
}

// HashConfig builds a hash run from the file-level defaults
func (c *Config) HashConfig(root string) HashConfig {
	mode, _ := walker.ParseSkipMode(c.Hash.SkipMode)
	return HashConfig{
		Root:        root,
		Index:       ExpandPath(c.Index),
		Concurrency: c.Concurrency,
		Extensions:  c.Hash.Extensions,
		SkipMode:    mode,
		Algorithm:   checksum.Algorithm(c.Hash.Algorithm),
		FlushEvery:  c.Hash.FlushEvery,
	}
}

// CompareConfig builds a compare run from the file-level defaults
func (c *Config) CompareConfig() CompareConfig {
	return CompareConfig{
		Index:       ExpandPath(c.Index),
		Concurrency: c.Concurrency,
		Strategy:    c.Compare.Strategy,
	}
}

// LoggerConfig builds the logger configuration. Verbose runs log to stderr
// at debug level; otherwise logs go to the rotating log file.
func (c *Config) LoggerConfig(verbose bool) logger.Config {
	// Validate has rejected unknown names; both fall back to the defaults
	level, _ := logger.ParseLevel(c.Log.Level)
	format, _ := logger.ParseFormat(c.Log.Format)
	cfg := logger.Config{
		Level:            level,
		Format:           format,
		MaskPersonalData: c.Log.MaskPersonalData,
		MaskPatterns:     c.Log.MaskPatterns,
	}

	if verbose {
		cfg.Level = logger.LevelDebug
		cfg.Outputs = []logger.OutputConfig{{Type: logger.OutputStderr}}
		return cfg
	}

	path := c.Log.File
	if path == "" {
		path = DefaultLogFile
	}
	cfg.Outputs = []logger.OutputConfig{{Type: logger.OutputFile}}
	cfg.File = logger.FileConfig{
		Enabled:    true,
		Path:       ExpandPath(path),
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		MaxBackups: c.Log.MaxBackups,
		Compress:   c.Log.Compress,
	}
	return cfg
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
