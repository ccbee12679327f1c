// Package config loads flowsketch settings.
//
// Priority, lowest to highest: defaults, YAML file (with ${VAR} expansion),
// environment variables. A .env file in the working directory is loaded into
// the environment first without overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowsketch/internal/isolation"
	"github.com/rendis/flowsketch/internal/llm"
	"github.com/rendis/flowsketch/internal/render"
	"github.com/rendis/flowsketch/pkg/schema"
)

// DefaultPath is read when no config path is given and FLOWSKETCH_CONFIG is unset.
const DefaultPath = "flowsketch.yaml"

// Config holds all flowsketch configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// WorkDir is where `run` looks for the latest input and where the server
	// creates per-request scratch directories.
	WorkDir string `yaml:"work_dir"`

	Model         ModelConfig         `yaml:"model"`
	Extract       ExtractConfig       `yaml:"extract"`
	Diagram       DiagramConfig       `yaml:"diagram"`
	Render        RenderConfig        `yaml:"render"`
	Server        ServerConfig        `yaml:"server"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ModelConfig struct {
	Provider string        `yaml:"provider"`
	Name     string        `yaml:"name"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ExtractConfig struct {
	MaxImageDim  int   `yaml:"max_image_dim"`
	MaxFileSize  int64 `yaml:"max_file_size"`
	MaxTextChars int   `yaml:"max_text_chars"`
}

type DiagramConfig struct {
	WrapWidth    int  `yaml:"wrap_width"`
	KeepDangling bool `yaml:"keep_dangling"`
}

type RenderConfig struct {
	Engine  string        `yaml:"engine"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Open    bool          `yaml:"open"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	// ScratchTTL is how long a request's scratch directory survives.
	ScratchTTL time.Duration `yaml:"scratch_ttl"`
	// JanitorSchedule is a cron expression for scratch cleanup.
	JanitorSchedule string `yaml:"janitor_schedule"`
}

type MCPConfig struct {
	Confinement isolation.Confinement `yaml:",inline"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		WorkDir:   ".",
		Model: ModelConfig{
			Provider: llm.ProviderGemini,
			Timeout:  2 * time.Minute,
		},
		Extract: ExtractConfig{
			MaxImageDim:  1024,
			MaxFileSize:  50 << 20,
			MaxTextChars: 100000,
		},
		Diagram: DiagramConfig{WrapWidth: 30},
		Render: RenderConfig{
			Engine:  render.EngineMermaid,
			Timeout: render.DefaultTimeout,
		},
		Server: ServerConfig{
			Addr:            ":5001",
			MaxConcurrent:   4,
			MaxUploadBytes:  20 << 20,
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ScratchTTL:      time.Hour,
			JanitorSchedule: "@every 10m",
		},
	}
}

// Load builds the configuration. An empty path falls back to FLOWSKETCH_CONFIG
// and then DefaultPath; only an explicitly named file must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, schema.NewError(schema.ErrCodeConfig, "load .env").WithCause(err)
	}

	explicit := path != ""
	if !explicit {
		if path = os.Getenv("FLOWSKETCH_CONFIG"); path != "" {
			explicit = true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "parse %s", path).WithCause(err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read %s", path).WithCause(err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	resolveAPIKey(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []string
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: not an integer: %q", key, v))
				return
			}
			*dst = n
		}
	}
	int64v := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: not an integer: %q", key, v))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: not a duration: %q", key, v))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	str("FLOWSKETCH_LOG_LEVEL", &cfg.LogLevel)
	str("FLOWSKETCH_LOG_FORMAT", &cfg.LogFormat)
	str("FLOWSKETCH_WORK_DIR", &cfg.WorkDir)

	str("FLOWSKETCH_MODEL_PROVIDER", &cfg.Model.Provider)
	str("FLOWSKETCH_MODEL", &cfg.Model.Name)
	str("FLOWSKETCH_MODEL_BASE_URL", &cfg.Model.BaseURL)
	duration("FLOWSKETCH_MODEL_TIMEOUT", &cfg.Model.Timeout)

	integer("FLOWSKETCH_MAX_IMAGE_DIM", &cfg.Extract.MaxImageDim)
	int64v("FLOWSKETCH_MAX_FILE_SIZE", &cfg.Extract.MaxFileSize)
	integer("FLOWSKETCH_MAX_TEXT_CHARS", &cfg.Extract.MaxTextChars)

	integer("FLOWSKETCH_WRAP_WIDTH", &cfg.Diagram.WrapWidth)
	boolean("FLOWSKETCH_KEEP_DANGLING", &cfg.Diagram.KeepDangling)

	str("FLOWSKETCH_RENDER_ENGINE", &cfg.Render.Engine)
	if v := os.Getenv("FLOWSKETCH_RENDER_COMMAND"); v != "" {
		cfg.Render.Command = strings.Fields(v)
	}
	duration("FLOWSKETCH_RENDER_TIMEOUT", &cfg.Render.Timeout)
	boolean("FLOWSKETCH_RENDER_OPEN", &cfg.Render.Open)

	str("FLOWSKETCH_ADDR", &cfg.Server.Addr)
	integer("FLOWSKETCH_MAX_CONCURRENT", &cfg.Server.MaxConcurrent)
	int64v("FLOWSKETCH_MAX_UPLOAD_BYTES", &cfg.Server.MaxUploadBytes)
	if v := os.Getenv("FLOWSKETCH_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	duration("FLOWSKETCH_SCRATCH_TTL", &cfg.Server.ScratchTTL)
	str("FLOWSKETCH_JANITOR_SCHEDULE", &cfg.Server.JanitorSchedule)

	boolean("FLOWSKETCH_OBSERVABILITY", &cfg.Observability.Enabled)

	if len(errs) > 0 {
		return schema.NewError(schema.ErrCodeConfig, "invalid environment: "+strings.Join(errs, "; ")).
			WithDetails(map[string]any{"problems": errs})
	}
	return nil
}

// resolveAPIKey fills Model.APIKey from the provider's conventional variable
// when neither the file nor FLOWSKETCH_API_KEY set it.
func resolveAPIKey(cfg *Config) {
	if v := os.Getenv("FLOWSKETCH_API_KEY"); v != "" {
		cfg.Model.APIKey = v
		return
	}
	if cfg.Model.APIKey != "" {
		return
	}
	switch cfg.Model.Provider {
	case llm.ProviderGemini:
		for _, key := range []string{"GEMINI_API", "GEMINI_API_KEY"} {
			if v := os.Getenv(key); v != "" {
				cfg.Model.APIKey = v
				return
			}
		}
	case llm.ProviderOpenRouter:
		cfg.Model.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every problem at once. requireKey is false for commands
// that never call the model.
func (c *Config) Validate(requireKey bool) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Model.Provider {
	case llm.ProviderGemini, llm.ProviderOpenRouter:
	default:
		add("model.provider must be %q or %q, got %q", llm.ProviderGemini, llm.ProviderOpenRouter, c.Model.Provider)
	}
	if requireKey && c.Model.APIKey == "" {
		add("no API key: set GEMINI_API (gemini), OPENROUTER_API_KEY (openrouter) or model.api_key")
	}
	if c.Model.Timeout <= 0 {
		add("model.timeout must be positive")
	}

	switch c.Render.Engine {
	case render.EngineMermaid, render.EngineGraphviz:
	default:
		add("render.engine must be %q or %q, got %q", render.EngineMermaid, render.EngineGraphviz, c.Render.Engine)
	}
	if c.Render.Timeout <= 0 {
		add("render.timeout must be positive")
	}

	if c.Extract.MaxImageDim <= 0 {
		add("extract.max_image_dim must be positive")
	}
	if c.Extract.MaxTextChars <= 0 {
		add("extract.max_text_chars must be positive")
	}
	if c.Extract.MaxFileSize < 0 {
		add("extract.max_file_size must not be negative")
	}
	if c.Diagram.WrapWidth <= 0 {
		add("diagram.wrap_width must be positive")
	}

	if c.Server.MaxConcurrent <= 0 {
		add("server.max_concurrent must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		add("server.max_upload_bytes must be positive")
	}
	if c.Server.ScratchTTL <= 0 {
		add("server.scratch_ttl must be positive")
	}
	if c.WorkDir == "" {
		add("work_dir must not be empty")
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		add("log_format must be text or json, got %q", c.LogFormat)
	}

	if len(problems) == 0 {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeConfig, "invalid configuration: %s", strings.Join(problems, "; ")).
		WithDetails(map[string]any{"problems": problems})
}
