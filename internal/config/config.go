package config

import (
	"net/url"
	"os"
	"time"

	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Backend    BackendConfig    `yaml:"backend"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Managers   []int64          `yaml:"managers"`
	Blacklist  []int64          `yaml:"blacklist"`
	Catalog    []CatalogEntry   `yaml:"catalog"`
	Exports    ExportConfig     `yaml:"exports"`
	Bot        BotConfig        `yaml:"bot"`
}

// CatalogEntry is a machine model offered as a shortcut button by the bot.
// Name is a display label only; rates always come from the backend.
type CatalogEntry struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

type BotConfig struct {
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
	ReceiptRetries    int `yaml:"receipt_retries"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	AccessToken    string `yaml:"access_token"`
	RefreshToken   string `yaml:"refresh_token"`
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type GatewayConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl"`
}

func (g GatewayConfig) CacheTTL() time.Duration {
	return time.Duration(g.CacheTTLSeconds) * time.Second
}

type BookingConfig struct {
	StaffMinDays       int `yaml:"staff_min_days"`
	SelfServiceMinDays int `yaml:"self_service_min_days"`
	MaxAdvanceDays     int `yaml:"max_advance_days"`
	SessionTTLSeconds  int `yaml:"session_ttl"`
}

func (b BookingConfig) SessionTTL() time.Duration {
	return time.Duration(b.SessionTTLSeconds) * time.Second
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey is one API consumer. Permissions name the flows it may open:
// "staff", "self_service" or "*".
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Path resolves the config file location from CONFIG_PATH.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &config, nil
}

// Validate checks what both binaries need.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf("backend base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.Email == "" && c.Backend.AccessToken == "" {
		return errors.New("backend credentials (email/password) or access_token are required")
	}
	if c.Booking.StaffMinDays < 1 || c.Booking.SelfServiceMinDays < 1 {
		return errors.New("booking minimum rental days must be positive")
	}
	return ValidateCatalog(c.Catalog)
}

// ValidateBot checks the settings only the Telegram binary needs.
func (c *Config) ValidateBot() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}
	return nil
}

func ValidateCatalog(entries []CatalogEntry) error {
	seen := make(map[int64]bool)
	for _, e := range entries {
		if e.ID <= 0 {
			return errors.Newf("catalog entry '%s' has invalid ID %d", e.Name, e.ID)
		}
		if seen[e.ID] {
			return errors.Newf("duplicate catalog ID found: %d", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// IsManager reports whether a Telegram user may run the staff-assisted flow.
func (c *Config) IsManager(userID int64) bool {
	for _, id := range c.Managers {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) IsBlacklisted(userID int64) bool {
	for _, id := range c.Blacklist {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "machrent"
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 10
	}
	if c.Gateway.CacheTTLSeconds == 0 {
		c.Gateway.CacheTTLSeconds = models.LocationsCacheTTL
	}
	if c.Booking.StaffMinDays == 0 {
		c.Booking.StaffMinDays = models.DefaultMinRentalDays
	}
	if c.Booking.SelfServiceMinDays == 0 {
		c.Booking.SelfServiceMinDays = models.DefaultMinRentalDays
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.SessionTTLSeconds == 0 {
		c.Booking.SessionTTLSeconds = models.DefaultSessionTTL
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}

	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}
	if c.Bot.ReceiptRetries == 0 {
		c.Bot.ReceiptRetries = 5
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports/receipts"
	}
}
