package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/folio/folio"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Meeting  MeetingConfig  `mapstructure:"meeting"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	Client   ClientConfig   `mapstructure:"client"`
}

// ServerConfig stores HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"` // "*" allows any origin
	HookToken       string        `mapstructure:"hook_token"`   // shared secret for /hooks, empty disables the check
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // zerolog level name
	Format string `mapstructure:"format"` // "console" or "json"
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN            string `mapstructure:"dsn"` // file path for embedded libsql
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	ConnMaxIdleSec int    `mapstructure:"conn_max_idle_sec"`
	ConnMaxLifeSec int    `mapstructure:"conn_max_life_sec"`
	BusyTimeoutMs  int    `mapstructure:"busy_timeout_ms"`
}

// LedgerConfig stores pending tool-call ledger settings.
type LedgerConfig struct {
	Backend    string        `mapstructure:"backend"` // "libsql", "redis", "memory"
	RedisURL   string        `mapstructure:"redis_url"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	PendingTTL time.Duration `mapstructure:"pending_ttl"` // unresolved calls older than this resolve as timed out
	Retention  time.Duration `mapstructure:"retention"`   // how long resolved records are kept
}

// AgentConfig stores reasoning and tool harness settings.
type AgentConfig struct {
	Provider     string  `mapstructure:"provider"` // "openai" or "rules"
	Model        string  `mapstructure:"model"`
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	OwnerName    string  `mapstructure:"owner_name"`
	MaxNewTokens int     `mapstructure:"max_new_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	TopP         float32 `mapstructure:"top_p"`

	// Policies
	MaxToolDepth     int           `mapstructure:"max_tool_depth"`
	MaxIterations    int           `mapstructure:"max_iterations"`
	MaxContextTokens int           `mapstructure:"max_context_tokens"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"` // synchronous tools
	JobTimeout       time.Duration `mapstructure:"job_timeout"`  // deferred tools

	// Rate limiting per username
	RateLimitEnabled bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`

	// Cache for immediate tool lookups
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheCapacity   int  `mapstructure:"cache_capacity"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	AllowedTools     []string `mapstructure:"allowed_tools"` // empty means allow all registered tools

	EnableTracing     bool `mapstructure:"enable_tracing"`
	TranscriptEnabled bool `mapstructure:"transcript_enabled"`
}

// NotifyConfig stores side-channel settings.
type NotifyConfig struct {
	Discord       DiscordConfig `mapstructure:"discord"`
	Teams         TeamsConfig   `mapstructure:"teams"`
	ReplyInterval time.Duration `mapstructure:"reply_interval"` // relay tools poll cadence
	ReplyTimeout  time.Duration `mapstructure:"reply_timeout"`  // relay tools wait budget
}

// DiscordConfig stores the Discord bot settings.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Token      string `mapstructure:"token"`
	ChannelID  string `mapstructure:"channel_id"`
	WaitUserID string `mapstructure:"wait_user_id"` // only replies from this user count, empty accepts anyone but the bot
}

// TeamsConfig stores the Microsoft Graph application settings.
type TeamsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserID       string `mapstructure:"user_id"` // skips the /me lookup when set
	GraphURL     string `mapstructure:"graph_url"`
}

// MeetingConfig stores the approval poll settings.
type MeetingConfig struct {
	ApprovalChannel  string        `mapstructure:"approval_channel"` // "teams" or "discord"
	ApprovalInterval time.Duration `mapstructure:"approval_interval"`
	ApprovalTimeout  time.Duration `mapstructure:"approval_timeout"`
	AutoApprove      bool          `mapstructure:"auto_approve"` // request approval when a meeting is created
	TranscriptStore  string        `mapstructure:"transcript_store"` // "redis", "libsql", "none"
}

// ProfileConfig stores profile document settings.
type ProfileConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// ClientConfig stores chat client settings.
type ClientConfig struct {
	ServerURL       string        `mapstructure:"server_url"`
	Username        string        `mapstructure:"username"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	return LoadConfigWithFlags(configPath, nil, nil)
}

// LoadConfigWithFlags is LoadConfig with command-line overrides. bindings maps
// a flag name onto the config key it overrides, e.g. "addr" -> "server.addr".
func LoadConfigWithFlags(configPath string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := newViper(configPath)

	for name, key := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return nil, fmt.Errorf("unknown flag %q bound to %s", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and env apply.
	}

	return decode(v)
}

// WatchConfig re-reads the config file on change and hands the new config to
// onChange. It is a no-op when no config file is in use.
func WatchConfig(configPath string, onChange func(*Config, error)) bool {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return true
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "libsql", "redis", "memory":
	default:
		return fmt.Errorf("ledger.backend %q is not one of libsql, redis, memory", c.Ledger.Backend)
	}
	switch c.Agent.Provider {
	case "openai", "rules":
	default:
		return fmt.Errorf("agent.provider %q is not one of openai, rules", c.Agent.Provider)
	}
	switch c.Meeting.ApprovalChannel {
	case "teams", "discord":
	default:
		return fmt.Errorf("meeting.approval_channel %q is not one of teams, discord", c.Meeting.ApprovalChannel)
	}
	switch c.Meeting.TranscriptStore {
	case "redis", "libsql", "none":
	default:
		return fmt.Errorf("meeting.transcript_store %q is not one of redis, libsql, none", c.Meeting.TranscriptStore)
	}
	if c.Agent.Provider == "openai" && c.Agent.APIKey == "" {
		return fmt.Errorf("agent.api_key is required for the openai provider")
	}
	if c.Client.MaxPollAttempts < 1 {
		return fmt.Errorf("client.max_poll_attempts must be at least 1")
	}
	return nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. agent.api_key becomes FOLIO_AGENT_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", internal.DefaultServerAddr)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s") // approval requests block up to meeting.approval_timeout
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20) // 1MB
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.hook_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// LibSQL embedded defaults
	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.max_open_conns", 1) // pragmas apply per connection
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_idle_sec", 300)
	v.SetDefault("database.conn_max_life_sec", 3600)
	v.SetDefault("database.busy_timeout_ms", 5000)

	v.SetDefault("ledger.backend", "libsql")
	v.SetDefault("ledger.redis_url", "redis://localhost:6379/0")
	v.SetDefault("ledger.key_prefix", "folio:call:")
	v.SetDefault("ledger.pending_ttl", "5m")
	v.SetDefault("ledger.retention", "24h")

	// Agent defaults
	v.SetDefault("agent.provider", "rules")
	v.SetDefault("agent.model", "gpt-4o-mini")
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.base_url", "")
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.owner_name", internal.DefaultOwnerName)
	v.SetDefault("agent.max_new_tokens", 1024)
	v.SetDefault("agent.temperature", 0.3)
	v.SetDefault("agent.top_p", 0.9)
	v.SetDefault("agent.max_tool_depth", 3)
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.max_context_tokens", 6000)
	v.SetDefault("agent.tool_timeout", "30s")
	v.SetDefault("agent.job_timeout", "2m")
	v.SetDefault("agent.rate_limit_enabled", true)
	v.SetDefault("agent.rate_limit_rps", 1.0)
	v.SetDefault("agent.rate_limit_burst", 5)
	v.SetDefault("agent.cache_enabled", true)
	v.SetDefault("agent.cache_capacity", 256)
	v.SetDefault("agent.cache_ttl_seconds", 300)
	v.SetDefault("agent.enable_guardrails", true)
	v.SetDefault("agent.allowed_tools", []string{}) // Empty means allow all by default
	v.SetDefault("agent.enable_tracing", false)
	v.SetDefault("agent.transcript_enabled", true)

	// Side channels are off until credentials are provided
	v.SetDefault("notify.discord.enabled", false)
	v.SetDefault("notify.discord.token", "")
	v.SetDefault("notify.discord.channel_id", "")
	v.SetDefault("notify.discord.wait_user_id", "")
	v.SetDefault("notify.teams.enabled", false)
	v.SetDefault("notify.teams.tenant_id", "")
	v.SetDefault("notify.teams.client_id", "")
	v.SetDefault("notify.teams.client_secret", "")
	v.SetDefault("notify.teams.user_id", "")
	v.SetDefault("notify.teams.graph_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("notify.reply_interval", "2s")
	v.SetDefault("notify.reply_timeout", "60s")

	v.SetDefault("meeting.approval_channel", "teams")
	v.SetDefault("meeting.approval_interval", "5s")
	v.SetDefault("meeting.approval_timeout", "30s")
	v.SetDefault("meeting.auto_approve", false)
	v.SetDefault("meeting.transcript_store", "libsql")

	v.SetDefault("profile.seed_file", "")

	v.SetDefault("client.server_url", internal.DefaultServerURL)
	v.SetDefault("client.username", "")
	v.SetDefault("client.poll_interval", "2s")
	v.SetDefault("client.max_poll_attempts", 30)
	v.SetDefault("client.request_timeout", "30s")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}
