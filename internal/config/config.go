package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverSupabase = "supabase"
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"

	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig
	Provider    ProviderConfig
	Supabase    SupabaseConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
}

type BasicConfig struct {
	Port          string
	Mode          string
	StoreDriver   string
	StaticDir     string
	TokenTTLHours int
}

type ProviderConfig struct {
	Name    string
	BaseURL string
	Model   string
	APIKey  string
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
}

type DatabaseConfig struct {
	DSN string
	// SeedActiveEmails are accounts given an active subscription at startup (local drivers only).
	SeedActiveEmails []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	ChatPerMinute int
	AuthPerMinute int
}

var defaultModels = map[string]string{
	ProviderGemini: "gemini-2.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderClaude: "claude-3-5-haiku-latest",
}

var providerKeyEnv = map[string]string{
	ProviderGemini: "GEMINI_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
	ProviderClaude: "ANTHROPIC_API_KEY",
}

// Load reads configuration from the environment, after applying an optional .env file.
// Every missing required value is reported in the returned error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BasicConfig: BasicConfig{
			Port:          getEnv("PORT", "3000"),
			Mode:          getEnv("APP_MODE", ModeDevelopment),
			StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverSupabase)),
			StaticDir:     getEnv("STATIC_DIR", ""),
			TokenTTLHours: getEnvAsInt("TOKEN_TTL_HOURS", 24),
		},
		Provider: ProviderConfig{
			Name:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
			BaseURL: getEnv("LLM_BASE_URL", ""),
			Model:   getEnv("LLM_MODEL", ""),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DATABASE_DSN", ""),
			SeedActiveEmails: getEnvAsList("SEED_ACTIVE_SUBSCRIPTIONS"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			ChatPerMinute: getEnvAsInt("CHAT_RATE_LIMIT", 20),
			AuthPerMinute: getEnvAsInt("AUTH_RATE_LIMIT", 10),
		},
	}

	var missing []string

	keyEnv, ok := providerKeyEnv[cfg.Provider.Name]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.Provider.Name)
	}
	cfg.Provider.APIKey = getEnv(keyEnv, "")
	if cfg.Provider.APIKey == "" {
		missing = append(missing, keyEnv)
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = defaultModels[cfg.Provider.Name]
	}

	switch cfg.BasicConfig.StoreDriver {
	case DriverSupabase:
		if cfg.Supabase.URL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.Supabase.AnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
		if cfg.Supabase.ServiceRoleKey == "" {
			cfg.Supabase.ServiceRoleKey = cfg.Supabase.AnonKey
		}
	case DriverSQLite, DriverMySQL:
		if cfg.Database.DSN == "" {
			missing = append(missing, "DATABASE_DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.BasicConfig.StoreDriver)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if cfg.BasicConfig.TokenTTLHours <= 0 {
		cfg.BasicConfig.TokenTTLHours = 24
	}
	return cfg, nil
}

// Production reports whether the service runs in release mode.
func (c *Config) Production() bool {
	return c.BasicConfig.Mode == ModeProduction
}

// RateLimitEnabled reports whether a redis address was configured.
func (c *Config) RateLimitEnabled() bool {
	return c.Redis.Addr != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
