package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/mediaflow/internal/engine"
	"github.com/example/mediaflow/internal/logging"
	"github.com/example/mediaflow/internal/providers/llm"
)

const envPrefix = "MEDIAFLOW"

type Config struct {
	Server  ServerConfig          `mapstructure:"server"`
	Log     logging.Config        `mapstructure:"log"`
	Planner PlannerConfig         `mapstructure:"planner"`
	LLM     LLMConfig             `mapstructure:"llm"`
	Engine  EngineConfig          `mapstructure:"engine"`
	Tools   map[string]ToolConfig `mapstructure:"tools"`
	Redis   RedisConfig           `mapstructure:"redis"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RunRetention is how long a finished run stays queryable.
	RunRetention    time.Duration `mapstructure:"run_retention"`
}

type PlannerConfig struct {
	Provider string `mapstructure:"provider"` // mock | llm
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type EngineConfig struct {
	MaxStatusErrors       int              `mapstructure:"max_status_errors"`
	StartFrameModels      []string         `mapstructure:"start_frame_models"`
	ReferenceLimits       []ReferenceLimit `mapstructure:"reference_limits"`
	DefaultReferenceLimit int              `mapstructure:"default_reference_limit"`
}

// ReferenceLimit is a list entry rather than a map key because model ids such
// as kling-v2.1 contain dots, which viper reads as nesting.
type ReferenceLimit struct {
	Model string `mapstructure:"model"`
	Max   int    `mapstructure:"max"`
}

// ToolConfig binds one tool name to a provider.
type ToolConfig struct {
	Provider       string        `mapstructure:"provider"` // prediction | mock | builtin
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SubmitPath     string        `mapstructure:"submit_path"`
	StatusPath     string        `mapstructure:"status_path"`
	CancelPath     string        `mapstructure:"cancel_path"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	MockDelay      time.Duration `mapstructure:"mock_delay"`
}

type RedisConfig struct {
	Addr          string        `mapstructure:"addr"` // empty disables the mirror
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEvents     int64         `mapstructure:"max_events"` // per-run list cap
}

// builtinTools finish inside the process and need no provider endpoint.
var builtinTools = map[string]bool{"document": true, "prompt": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.run_retention", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("planner.provider", "mock")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("engine.max_status_errors", 3)
	v.SetDefault("engine.default_reference_limit", engine.DefaultRequirements().DefaultReferenceLimit)
	v.SetDefault("redis.channel_prefix", "mediaflow:runs:")
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("redis.max_events", 1000)
	for tool, pol := range engine.DefaultPolicies() {
		provider := "mock"
		if builtinTools[tool] {
			provider = "builtin"
		}
		v.SetDefault("tools."+tool+".provider", provider)
		v.SetDefault("tools."+tool+".poll_interval", pol.Interval.String())
		v.SetDefault("tools."+tool+".timeout", pol.Timeout.String())
		v.SetDefault("tools."+tool+".mock_delay", "2s")
	}
}

// Load reads the YAML file at path, if any, over the defaults. Environment
// variables such as MEDIAFLOW_SERVER_ADDR override both, and secrets written
// as "${NAME}" are read from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.expandSecrets()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandSecrets() {
	c.LLM.APIKey = expandEnv(c.LLM.APIKey)
	c.Redis.Password = expandEnv(c.Redis.Password)
	for name, tc := range c.Tools {
		tc.APIKey = expandEnv(tc.APIKey)
		tc.BaseURL = expandEnv(tc.BaseURL)
		c.Tools[name] = tc
	}
}

func (c *Config) validate() error {
	for name, tc := range c.Tools {
		switch strings.ToLower(tc.Provider) {
		case "prediction":
			if tc.BaseURL == "" {
				return fmt.Errorf("tools.%s: prediction provider needs base_url", name)
			}
		case "builtin":
			if !builtinTools[name] {
				return fmt.Errorf("tools.%s: no builtin implementation", name)
			}
		case "mock", "":
		default:
			return fmt.Errorf("tools.%s: unknown provider %q", name, tc.Provider)
		}
	}
	if c.Server.RunRetention <= 0 {
		return fmt.Errorf("server.run_retention must be positive")
	}
	if c.Engine.MaxStatusErrors < 0 {
		return fmt.Errorf("engine.max_status_errors must not be negative")
	}
	return nil
}

// expandEnv resolves a whole-value "${NAME}" reference.
func expandEnv(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}"))
	}
	return s
}

func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
		Timeout:  c.LLM.Timeout,
	}
}

// Policies returns per-tool poll cadence, starting from the engine defaults.
func (c *Config) Policies() map[string]engine.PollPolicy {
	out := engine.DefaultPolicies()
	for name, tc := range c.Tools {
		p := out[name]
		if tc.PollInterval > 0 {
			p.Interval = tc.PollInterval
		}
		if tc.Timeout > 0 {
			p.Timeout = tc.Timeout
		}
		out[name] = p
	}
	return out
}

// Requirements extends the built-in model rules with configured ones.
func (c *Config) Requirements() *engine.Requirements {
	r := engine.DefaultRequirements()
	for _, m := range c.Engine.StartFrameModels {
		r.StartFrameModels[m] = true
	}
	for _, l := range c.Engine.ReferenceLimits {
		r.ReferenceLimits[l.Model] = l.Max
	}
	if c.Engine.DefaultReferenceLimit > 0 {
		r.DefaultReferenceLimit = c.Engine.DefaultReferenceLimit
	}
	return r
}
