package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"file-patch-server/internal/filesystem"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys.
// FILE_PATCHER_MAX_FILE_SIZE sets max-file-size.
const EnvPrefix = "FILE_PATCHER"

// Approval modes.
const (
	ApprovalAuto        = "auto"
	ApprovalReviewer    = "reviewer"
	ApprovalInteractive = "interactive"
)

// Config holds all configurable values for the server and the CLI.
type Config struct {
	WorkingDirectory    string   `mapstructure:"dir"`
	Transport           string   `mapstructure:"transport"`
	Port                int      `mapstructure:"port"`
	MaxFileSizeMB       int      `mapstructure:"max-file-size"`
	MaxConcurrentOps    int      `mapstructure:"max-concurrent"`
	OperationTimeoutSec int      `mapstructure:"timeout"`
	MaxEdits            int      `mapstructure:"max-edits"`
	Approval            string   `mapstructure:"approval"`
	ReviewerURL         string   `mapstructure:"reviewer-url"`
	DiffContext         int      `mapstructure:"diff-context"`
	SnippetContext      int      `mapstructure:"snippet-context"`
	SnippetMaxLines     int      `mapstructure:"snippet-max-lines"`
	Deny                []string `mapstructure:"deny"`
	ReadOnly            []string `mapstructure:"read-only"`
	LockDir             string   `mapstructure:"lock-dir"`
	LogLevel            string   `mapstructure:"log-level"`
	LogFormat           string   `mapstructure:"log-format"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Transport:           "http",
		Port:                8080,
		MaxFileSizeMB:       10,
		MaxConcurrentOps:    10,
		OperationTimeoutSec: 30,
		MaxEdits:            1000,
		Approval:            ApprovalAuto,
		DiffContext:         3,
		SnippetContext:      4,
		SnippetMaxLines:     40,
		Deny:                []string{".git/**"},
		ReadOnly:            []string{},
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// RegisterFlags defines every configuration key as a flag on fs, plus --config.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("dir", d.WorkingDirectory, "Path to the workspace root (required)")
	fs.String("transport", d.Transport, "Transport protocol (http or stdio)")
	fs.Int("port", d.Port, "Port for HTTP transport")
	fs.Int("max-file-size", d.MaxFileSizeMB, "Maximum file size in MB")
	fs.Int("max-concurrent", d.MaxConcurrentOps, "Maximum concurrent operations")
	fs.Int("timeout", d.OperationTimeoutSec, "Operation timeout in seconds")
	fs.Int("max-edits", d.MaxEdits, "Maximum number of edits in one request")
	fs.String("approval", d.Approval, "Approval mode (auto, reviewer or interactive)")
	fs.String("reviewer-url", d.ReviewerURL, "Base URL of the external reviewer")
	fs.Int("diff-context", d.DiffContext, "Context lines around each diff hunk")
	fs.Int("snippet-context", d.SnippetContext, "Context lines around the first change in result snippets")
	fs.Int("snippet-max-lines", d.SnippetMaxLines, "Maximum length of result snippets")
	fs.StringSlice("deny", d.Deny, "Workspace-relative glob patterns that may not be read or written")
	fs.StringSlice("read-only", d.ReadOnly, "Workspace-relative glob patterns that may not be written")
	fs.String("lock-dir", d.LockDir, "Directory for cross-process lock files (defaults to the system temp dir)")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "Log format (text or json)")
}

// Load resolves the configuration from, in increasing precedence: defaults, the
// file named by --config, FILE_PATCHER_* environment variables and changed flags.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("dir", d.WorkingDirectory)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("port", d.Port)
	v.SetDefault("max-file-size", d.MaxFileSizeMB)
	v.SetDefault("max-concurrent", d.MaxConcurrentOps)
	v.SetDefault("timeout", d.OperationTimeoutSec)
	v.SetDefault("max-edits", d.MaxEdits)
	v.SetDefault("approval", d.Approval)
	v.SetDefault("reviewer-url", d.ReviewerURL)
	v.SetDefault("diff-context", d.DiffContext)
	v.SetDefault("snippet-context", d.SnippetContext)
	v.SetDefault("snippet-max-lines", d.SnippetMaxLines)
	v.SetDefault("deny", d.Deny)
	v.SetDefault("read-only", d.ReadOnly)
	v.SetDefault("lock-dir", d.LockDir)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var configFile string
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ConfigFile = configFile
	return cfg, nil
}

// OperationTimeout returns the per-operation deadline.
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutSec) * time.Second
}

// MaxFileSizeBytes returns the file size limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.WorkingDirectory == "" {
		return fmt.Errorf("working directory is required")
	}
	if err := filesystem.CheckDirectoryIsWritable(c.WorkingDirectory); err != nil {
		return fmt.Errorf("working directory is not usable: %w", err)
	}

	if c.Transport != "http" && c.Transport != "stdio" {
		return fmt.Errorf("transport must be 'http' or 'stdio'")
	}
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1024 and 65535")
	}
	if c.MaxFileSizeMB < 1 || c.MaxFileSizeMB > 100 {
		return fmt.Errorf("max file size must be between 1 and 100 MB")
	}
	if c.MaxConcurrentOps < 1 || c.MaxConcurrentOps > 100 {
		return fmt.Errorf("max concurrent operations must be between 1 and 100")
	}
	if c.OperationTimeoutSec < 5 || c.OperationTimeoutSec > 300 {
		return fmt.Errorf("operation timeout must be between 5 and 300 seconds")
	}
	if c.MaxEdits < 1 || c.MaxEdits > 1000 {
		return fmt.Errorf("max edits must be between 1 and 1000")
	}

	switch c.Approval {
	case ApprovalAuto, ApprovalInteractive:
	case ApprovalReviewer:
		if c.ReviewerURL == "" {
			return fmt.Errorf("reviewer-url is required when approval is 'reviewer'")
		}
	default:
		return fmt.Errorf("approval must be 'auto', 'reviewer' or 'interactive'")
	}

	if c.DiffContext < 0 || c.SnippetContext < 0 {
		return fmt.Errorf("diff and snippet context must not be negative")
	}
	if c.SnippetMaxLines < 1 {
		return fmt.Errorf("snippet max lines must be at least 1")
	}
	for _, p := range append(append([]string{}, c.Deny...), c.ReadOnly...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid path pattern %q", p)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be 'text' or 'json'")
	}
	return nil
}
