package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Ning0612/deduplify/internal/core/checksum"
	"github.com/Ning0612/deduplify/internal/core/walker"
	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
)

func TestLoadFromString(t *testing.T) {
	yaml := `
index: /var/lib/deduplify/photos.json
concurrency: 1
hash:
  extensions: [jpg, png]
  skip_mode: path
  algorithm: sha256
  flush_every: 50
compare:
  strategy: manual
log:
  level: debug
  format: json
  mask_patterns: ['serial=\w+']
`
	cfg, err := LoadFromString(yaml)
	if err != nil {
		t.Fatalf("LoadFromString failed: %v", err)
	}

	if cfg.Index != "/var/lib/deduplify/photos.json" {
		t.Errorf("Index = %s", cfg.Index)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
	if len(cfg.Hash.Extensions) != 2 || cfg.Hash.Extensions[0] != "jpg" {
		t.Errorf("Extensions = %v", cfg.Hash.Extensions)
	}
	if cfg.Hash.SkipMode != "path" || cfg.Hash.Algorithm != "sha256" || cfg.Hash.FlushEvery != 50 {
		t.Errorf("Hash = %+v", cfg.Hash)
	}
	if cfg.Compare.Strategy != "manual" {
		t.Errorf("Strategy = %s", cfg.Compare.Strategy)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if len(cfg.Log.MaskPatterns) != 1 || cfg.Log.MaskPatterns[0] != `serial=\w+` {
		t.Errorf("MaskPatterns = %q", cfg.Log.MaskPatterns)
	}
	// Unset keys keep their defaults
	if cfg.Log.File != DefaultLogFile {
		t.Errorf("Log.File = %s, want default", cfg.Log.File)
	}
}

func TestLoadFromString_Defaults(t *testing.T) {
	cfg, err := LoadFromString("")
	if err != nil {
		t.Fatalf("LoadFromString failed: %v", err)
	}

	d := Default()
	if cfg.Index != d.Index || cfg.Concurrency != d.Concurrency {
		t.Errorf("got %s/%d, want %s/%d", cfg.Index, cfg.Concurrency, d.Index, d.Concurrency)
	}
	if cfg.Hash.SkipMode != string(walker.SkipByName) {
		t.Errorf("default skip mode = %s, want name", cfg.Hash.SkipMode)
	}
	if cfg.Hash.Algorithm != string(checksum.MD5) {
		t.Errorf("default algorithm = %s, want md5", cfg.Hash.Algorithm)
	}
}

func TestLoadFromString_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "index: [unclosed"},
		{"empty index", "index: \"\""},
		{"bad skip mode", "hash:\n  skip_mode: inode"},
		{"bad algorithm", "hash:\n  algorithm: crc32"},
		{"negative flush", "hash:\n  flush_every: -1"},
		{"bad strategy", "compare:\n  strategy: newest"},
		{"bad log level", "log:\n  level: loud"},
		{"bad log format", "log:\n  format: xml"},
		{"bad mask pattern", "log:\n  mask_patterns: [\"(\"]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromString(tt.yaml)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 1\ncompare:\n  strategy: manual\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Compare.Strategy != "manual" {
		t.Errorf("Strategy = %s, want manual", cfg.Compare.Strategy)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DEDUPLIFY_INDEX", "/tmp/from-env.json")
	t.Setenv("DEDUPLIFY_HASH_SKIP_MODE", "path")

	cfg, err := LoadFromString("index: /tmp/from-file.db\n")
	if err != nil {
		t.Fatalf("LoadFromString failed: %v", err)
	}
	if cfg.Index != "/tmp/from-env.json" {
		t.Errorf("Index = %s, want env value", cfg.Index)
	}
	if cfg.Hash.SkipMode != "path" {
		t.Errorf("SkipMode = %s, want path", cfg.Hash.SkipMode)
	}
}

func TestHashConfig_Validate(t *testing.T) {
	valid := HashConfig{
		Root:        "/data",
		Index:       "file_hashes.db",
		Concurrency: 1,
		SkipMode:    walker.SkipByName,
		Algorithm:   checksum.MD5,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*HashConfig)
		wantErr error
	}{
		{"no root", func(c *HashConfig) { c.Root = "" }, domain.ErrConfigInvalid},
		{"no index", func(c *HashConfig) { c.Index = "" }, domain.ErrConfigInvalid},
		{"zero workers", func(c *HashConfig) { c.Concurrency = 0 }, domain.ErrConfigInvalid},
		{"too many workers", func(c *HashConfig) { c.Concurrency = runtime.NumCPU() + 1 }, domain.ErrConcurrencyExceeded},
		{"bad skip mode", func(c *HashConfig) { c.SkipMode = "inode" }, domain.ErrConfigInvalid},
		{"bad algorithm", func(c *HashConfig) { c.Algorithm = "crc32" }, domain.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompareConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CompareConfig
		wantErr error
	}{
		{"valid", CompareConfig{Index: "i.db", Concurrency: 1}, nil},
		{"no index", CompareConfig{Concurrency: 1}, domain.ErrConfigInvalid},
		{"too many workers", CompareConfig{Index: "i.db", Concurrency: runtime.NumCPU() + 1}, domain.ErrConcurrencyExceeded},
		{"bad strategy", CompareConfig{Index: "i.db", Concurrency: 1, Strategy: "newest"}, domain.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCleanConfig_Validate(t *testing.T) {
	if err := (CleanConfig{}).Validate(); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("empty root should be invalid, got %v", err)
	}
	if err := (CleanConfig{Root: "/data", DryRun: true}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfig_HashConfig(t *testing.T) {
	cfg := Default()
	cfg.Hash.SkipMode = "path"
	cfg.Hash.Extensions = []string{"txt"}

	hc := cfg.HashConfig("/data")
	if hc.Root != "/data" || hc.SkipMode != walker.SkipByPath || hc.Extensions[0] != "txt" {
		t.Errorf("HashConfig = %+v", hc)
	}
	if hc.Restart {
		t.Error("Restart must default to false")
	}
}

func TestConfig_LoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.MaskPatterns = []string{"acct-[0-9]+"}

	quiet := cfg.LoggerConfig(false)
	if !quiet.File.Enabled || quiet.File.Path != DefaultLogFile {
		t.Errorf("non-verbose logs should go to %s: %+v", DefaultLogFile, quiet.File)
	}
	if len(quiet.Outputs) != 1 || quiet.Outputs[0].Type != logger.OutputFile {
		t.Errorf("Outputs = %+v", quiet.Outputs)
	}
	if quiet.Level != logger.LevelWarn {
		t.Errorf("Level = %v, want warn", quiet.Level)
	}
	if len(quiet.MaskPatterns) != 1 {
		t.Errorf("MaskPatterns = %v", quiet.MaskPatterns)
	}

	verbose := cfg.LoggerConfig(true)
	if verbose.File.Enabled {
		t.Error("verbose logs should not go to a file")
	}
	if len(verbose.Outputs) != 1 || verbose.Outputs[0].Type != logger.OutputStderr {
		t.Errorf("Outputs = %+v", verbose.Outputs)
	}
	if verbose.Level != logger.LevelDebug {
		t.Errorf("Level = %v, want debug", verbose.Level)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	t.Setenv("DEDUPLIFY_TEST_DIR", "/opt/dd")

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/index.db", filepath.Join(home, "index.db")},
		{"$DEDUPLIFY_TEST_DIR/index.db", filepath.Join("/opt/dd", "index.db")},
		{"a/../b.db", "b.db"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
