package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the answer aggregation service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug           bool          `mapstructure:"debug"`
	LogLevel        string        `mapstructure:"log_level"`
	DefaultLanguage string        `mapstructure:"default_language"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// ProvidersConfig contains credentials and overrides for the LLM vendors.
// A provider with an empty key is constructed as unavailable and skipped by
// the router; it still shows up in status reports.
type ProvidersConfig struct {
	Groq        ProviderConfig `mapstructure:"groq"`
	Mistral     ProviderConfig `mapstructure:"mistral"`
	Anthropic   ProviderConfig `mapstructure:"anthropic"`
	Cohere      ProviderConfig `mapstructure:"cohere"`
	AI21        ProviderConfig `mapstructure:"ai21"`
	Gemini      ProviderConfig `mapstructure:"gemini"`
	Perplexity  ProviderConfig `mapstructure:"perplexity"`
	HuggingFace ProviderConfig `mapstructure:"huggingface"`
	OpenRouter  ProviderConfig `mapstructure:"openrouter"`
	Ollama      ProviderConfig `mapstructure:"ollama"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig is the per-vendor configuration block
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// UpstreamConfig contains settings for the data API gateway that the
// fan-out engine queries.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MedicalTimeout time.Duration `mapstructure:"medical_timeout"`
}

func (u UpstreamConfig) Validate() error {
	if strings.TrimSpace(u.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings. Redis is optional: when the
// host is empty the cache and quota tracker fall back to process memory.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host := p.Host
	port := p.Port
	ssl := p.SSLMode
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.default_language", "fr")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("providers.timeout", "30s")
	viper.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	viper.SetDefault("upstream.timeout", "10s")
	viper.SetDefault("upstream.medical_timeout", "15s")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ANSWERHUB")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (ANSWERHUB_*)

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Upstream.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
