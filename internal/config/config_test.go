package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.WorkingDirectory = t.TempDir()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"missing dir", func(c *Config) { c.WorkingDirectory = "" }, "working directory is required"},
		{"dir does not exist", func(c *Config) { c.WorkingDirectory = filepath.Join(c.WorkingDirectory, "missing") }, "working directory is not usable"},
		{"bad transport", func(c *Config) { c.Transport = "grpc" }, "transport must be 'http' or 'stdio'"},
		{"port too low", func(c *Config) { c.Port = 80 }, "port must be between 1024 and 65535"},
		{"file size too large", func(c *Config) { c.MaxFileSizeMB = 101 }, "max file size must be between 1 and 100 MB"},
		{"no concurrency", func(c *Config) { c.MaxConcurrentOps = 0 }, "max concurrent operations must be between 1 and 100"},
		{"timeout lower bound", func(c *Config) { c.OperationTimeoutSec = 5 }, ""},
		{"timeout upper bound", func(c *Config) { c.OperationTimeoutSec = 300 }, ""},
		{"timeout too short", func(c *Config) { c.OperationTimeoutSec = 4 }, "operation timeout must be between 5 and 300 seconds"},
		{"timeout too long", func(c *Config) { c.OperationTimeoutSec = 301 }, "operation timeout must be between 5 and 300 seconds"},
		{"too many edits", func(c *Config) { c.MaxEdits = 1001 }, "max edits must be between 1 and 1000"},
		{"unknown approval", func(c *Config) { c.Approval = "maybe" }, "approval must be"},
		{"reviewer without url", func(c *Config) { c.Approval = ApprovalReviewer }, "reviewer-url is required"},
		{"reviewer with url", func(c *Config) { c.Approval = ApprovalReviewer; c.ReviewerURL = "http://127.0.0.1:9000" }, ""},
		{"negative context", func(c *Config) { c.DiffContext = -1 }, "must not be negative"},
		{"zero snippet lines", func(c *Config) { c.SnippetMaxLines = 0 }, "snippet max lines must be at least 1"},
		{"bad pattern", func(c *Config) { c.Deny = []string{"[oops"} }, "invalid path pattern"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log level must be one of"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format must be 'text' or 'json'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Equal(t, []string{".git/**"}, cfg.Deny)
	assert.Equal(t, ApprovalAuto, cfg.Approval)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSizeBytes())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patcher.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: 9000\ntimeout: 60\nmax-edits: 50\ndeny:\n  - secrets/**\n"), 0o644))
	t.Setenv("FILE_PATCHER_TIMEOUT", "90")
	t.Setenv("FILE_PATCHER_DIR", dir)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", file, "--max-edits", "7"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, file, cfg.ConfigFile)
	assert.Equal(t, dir, cfg.WorkingDirectory)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 90, cfg.OperationTimeoutSec)
	assert.Equal(t, 7, cfg.MaxEdits)
	assert.Equal(t, []string{"secrets/**"}, cfg.Deny)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))

	_, err := Load(fs)
	assert.Error(t, err)
}
