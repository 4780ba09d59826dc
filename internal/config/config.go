// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeySubstrateAddr = "SUBSTRATE_ADDR"
	KeyBotOperators  = "BOT_OPERATORS"
	KeyMongoURI      = "MONGO_URI"
	KeyMongoDB       = "MONGO_DB"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"
	KeyMaxGroupSize  = "MAX_GROUP_SIZE"
	KeyMaxTopicSize  = "MAX_TOPIC_SIZE"
	KeyMaxFileSize   = "MAX_FILE_SIZE"
	KeyAllowGroups   = "ALLOW_GROUPS"
	KeyAllowChannels = "ALLOW_CHANNELS"
	KeyInactiveSecs  = "INACTIVE_SECONDS"
	KeyReapInterval  = "REAP_INTERVAL_SECONDS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv        = EnvProduction
	DefaultLogLevel      = "info"
	DefaultHTTPPort      = 8080
	DefaultMaxGroupSize  = 999999
	DefaultMaxTopicSize  = 500
	DefaultMaxFileSize   = 504800
	DefaultReapInterval  = 3600 * time.Second
	DefaultInactiveSecs  = 0 // reaper disabled
	DefaultAllowGroups   = true
	DefaultAllowChannels = true

	// Recommended database names by environment.
	DefaultMongoDBProd = "group_directory"
	DefaultMongoDBDev  = "group_directory_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeySubstrateAddr,
		Example:     "127.0.0.1:20808",
		Required:    true,
		Description: "Address of the messaging substrate JSON-RPC endpoint.",
	},
	{
		Key:         KeyBotOperators,
		Example:     "op1@example.org,op2@example.org",
		Description: "Comma-separated addresses with operator privileges.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeyMaxGroupSize,
		Example:     strconv.Itoa(DefaultMaxGroupSize),
		Default:     strconv.Itoa(DefaultMaxGroupSize),
		Description: "Maximum member count of a public group joinable via the directory.",
	},
	{
		Key:         KeyMaxTopicSize,
		Example:     strconv.Itoa(DefaultMaxTopicSize),
		Default:     strconv.Itoa(DefaultMaxTopicSize),
		Description: "Maximum topic length; longer topics are truncated.",
	},
	{
		Key:         KeyMaxFileSize,
		Example:     strconv.Itoa(DefaultMaxFileSize),
		Default:     strconv.Itoa(DefaultMaxFileSize),
		Description: "Maximum attachment size in bytes accepted on channel posts.",
	},
	{
		Key:         KeyAllowGroups,
		Example:     "1",
		Default:     "1",
		Description: "Whether regular members may publish groups to the directory.",
	},
	{
		Key:         KeyAllowChannels,
		Example:     "1",
		Default:     "1",
		Description: "Whether regular members may create channels.",
		Notes:       "When disabled, channel creation is restricted to operators.",
	},
	{
		Key:         KeyInactiveSecs,
		Example:     "86400",
		Default:     strconv.Itoa(DefaultInactiveSecs),
		Description: "Inactivity threshold in seconds before members are evicted from public groups.",
		Notes:       "Zero or negative disables the reaper.",
	},
	{
		Key:         KeyReapInterval,
		Example:     "3600",
		Default:     strconv.Itoa(int(DefaultReapInterval / time.Second)),
		Description: "Period in seconds between reaper sweeps.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	SubstrateAddr string
	Operators     []string
	MongoURI      string
	MongoDB       string
	AppEnv        string
	LogLevel      string
	HTTPPort      int
	MaxGroupSize  int
	MaxTopicSize  int
	MaxFileSize   int64
	AllowGroups   bool
	AllowChannels bool
	InactiveAge   time.Duration
	ReapInterval  time.Duration
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		SubstrateAddr: strings.TrimSpace(os.Getenv(KeySubstrateAddr)),
		Operators:     splitAddrs(os.Getenv(KeyBotOperators)),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
		MaxGroupSize:  DefaultMaxGroupSize,
		MaxTopicSize:  DefaultMaxTopicSize,
		MaxFileSize:   DefaultMaxFileSize,
		AllowGroups:   DefaultAllowGroups,
		AllowChannels: DefaultAllowChannels,
		InactiveAge:   DefaultInactiveSecs,
		ReapInterval:  DefaultReapInterval,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.SubstrateAddr == "" {
		missing = append(missing, KeySubstrateAddr)
	}
	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}
	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := overrideInt(KeyHTTPPort, &cfg.HTTPPort, 1); err != nil {
		return Config{}, err
	}
	if err := overrideInt(KeyMaxGroupSize, &cfg.MaxGroupSize, 1); err != nil {
		return Config{}, err
	}
	if err := overrideInt(KeyMaxTopicSize, &cfg.MaxTopicSize, 1); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv(KeyMaxFileSize)); raw != "" {
		size, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyMaxFileSize, parseErr)
		}
		if size <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyMaxFileSize)
		}
		cfg.MaxFileSize = size
	}

	if raw := strings.TrimSpace(os.Getenv(KeyAllowGroups)); raw != "" {
		cfg.AllowGroups = raw == "1" || strings.EqualFold(raw, "true")
	}
	if raw := strings.TrimSpace(os.Getenv(KeyAllowChannels)); raw != "" {
		cfg.AllowChannels = raw == "1" || strings.EqualFold(raw, "true")
	}

	if raw := strings.TrimSpace(os.Getenv(KeyInactiveSecs)); raw != "" {
		secs, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyInactiveSecs, parseErr)
		}
		cfg.InactiveAge = time.Duration(secs) * time.Second
	}

	if raw := strings.TrimSpace(os.Getenv(KeyReapInterval)); raw != "" {
		secs, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyReapInterval, parseErr)
		}
		if secs <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyReapInterval)
		}
		cfg.ReapInterval = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// IsOperator reports whether the given address is configured as an operator.
func (c Config) IsOperator(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false
	}
	for _, op := range c.Operators {
		if strings.ToLower(op) == addr {
			return true
		}
	}
	return false
}

// FormatRedacted renders a printable configuration summary with credentials
// masked, suitable for --config-only diagnostics.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "substrate_addr: %s\n", cfg.SubstrateAddr)
	fmt.Fprintf(&b, "operators: %d configured\n", len(cfg.Operators))
	fmt.Fprintf(&b, "mongo_uri: %s\n", redactMongoURI(cfg.MongoURI))
	fmt.Fprintf(&b, "mongo_db: %s\n", cfg.MongoDB)
	fmt.Fprintf(&b, "app_env: %s\n", cfg.AppEnv)
	fmt.Fprintf(&b, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "http_port: %d\n", cfg.HTTPPort)
	fmt.Fprintf(&b, "max_group_size: %d\n", cfg.MaxGroupSize)
	fmt.Fprintf(&b, "max_topic_size: %d\n", cfg.MaxTopicSize)
	fmt.Fprintf(&b, "max_file_size: %d\n", cfg.MaxFileSize)
	fmt.Fprintf(&b, "allow_groups: %t\n", cfg.AllowGroups)
	fmt.Fprintf(&b, "allow_channels: %t\n", cfg.AllowChannels)
	fmt.Fprintf(&b, "inactive_age: %s\n", cfg.InactiveAge)
	fmt.Fprintf(&b, "reap_interval: %s", cfg.ReapInterval)

	return b.String()
}

func redactMongoURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

func overrideInt(key string, target *int, min int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < min {
		return fmt.Errorf("%s must be at least %d", key, min)
	}

	*target = value
	return nil
}

func splitAddrs(raw string) []string {
	parts := strings.Split(raw, ",")
	addrs := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := strings.TrimSpace(part); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
