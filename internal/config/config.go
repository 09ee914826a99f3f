package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"beautycity/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig        `yaml:"app"`
	Telegram    TelegramConfig   `yaml:"telegram"`
	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	Scheduling  SchedulingConfig `yaml:"scheduling"`
	Backup      BackupConfig     `yaml:"backup"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     LoggingConfig    `yaml:"logging"`
	API         APIConfig        `yaml:"api"`
	Exports     ExportConfig     `yaml:"exports"`
	Google      GoogleConfig     `yaml:"google"`
	CatalogPath string           `yaml:"catalog_path"`
}

type SchedulingConfig struct {
	SlotStepMinutes int    `yaml:"slot_step_minutes"`
	Timezone        string `yaml:"timezone"`
	MaxBookingDays  int    `yaml:"max_booking_days"`
	// LockWaitMillis bounds how long an admission waits for the per-specialist lock.
	LockWaitMillis int `yaml:"lock_wait_ms"`
}

func (s SchedulingConfig) SlotStep() time.Duration {
	return time.Duration(s.SlotStepMinutes) * time.Minute
}

func (s SchedulingConfig) LockWait() time.Duration {
	return time.Duration(s.LockWaitMillis) * time.Millisecond
}

// Location resolves the salon timezone; an empty name means time.Local.
func (s SchedulingConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
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
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// Appointments per customer phone within the window; 0 disables the check.
	BookingsPerPhone     int `yaml:"bookings_per_phone"`
	BookingWindowMinutes int `yaml:"booking_window_minutes"`
}

func (r APIRateLimitConfig) BookingWindow() time.Duration {
	return time.Duration(r.BookingWindowMinutes) * time.Minute
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
	BotToken       string  `yaml:"bot_token"`
	Debug          bool    `yaml:"debug"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.BotToken != "YOUR_BOT_TOKEN_HERE" && len(t.ManagerChatIDs) > 0
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"appointments_spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.SpreadsheetID != ""
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate reports every problem at once so a broken deploy needs one fix round.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	errs = append(errs, c.Scheduling.validate()...)
	errs = append(errs, c.API.validate()...)
	return errors.Join(errs...)
}

func (s SchedulingConfig) validate() []error {
	var errs []error
	if step := s.SlotStepMinutes; step < 0 || step > 24*60 || (step > 0 && 24*60%step != 0) {
		errs = append(errs, fmt.Errorf("slot_step_minutes must divide a day, got %d", step))
	}
	if s.MaxBookingDays < 0 {
		errs = append(errs, fmt.Errorf("max booking days must not be negative, got %d", s.MaxBookingDays))
	}
	if s.LockWait() >= models.AdmissionLockTTL {
		errs = append(errs, fmt.Errorf("lock_wait_ms must be below the lock ttl %s", models.AdmissionLockTTL))
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err))
	}
	return errs
}

func (a APIConfig) validate() []error {
	var errs []error
	if a.Auth.Enabled && a.HTTP.Enabled && len(a.Auth.APIKeys) == 0 {
		errs = append(errs, errors.New("api auth is enabled but no api keys are configured"))
	}
	seen := make(map[string]bool, len(a.Auth.APIKeys))
	for _, k := range a.Auth.APIKeys {
		switch {
		case k.Key == "":
			errs = append(errs, fmt.Errorf("api key %q has empty key", k.Name))
		case seen[k.Key]:
			errs = append(errs, fmt.Errorf("api key %q is configured twice", k.Name))
		}
		seen[k.Key] = true
	}
	if a.RateLimit.RPS < 0 || a.RateLimit.BookingsPerPhone < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	return errs
}

func (c *Config) applyDefaults() {
	c.API.applyDefaults()
	c.Scheduling.applyDefaults()

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Appointments"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}

func (a *APIConfig) applyDefaults() {
	if a.GRPC.Port == 0 {
		a.GRPC.Port = 8081
	}
	if a.HTTP.Port == 0 {
		a.HTTP.Port = 8080
	}
	// включенный API без явной секции http обслуживает HTTP
	if a.Enabled && !a.HTTP.Enabled {
		a.HTTP.Enabled = true
	}
	if a.Auth.HeaderAPIKey == "" {
		a.Auth.HeaderAPIKey = "x-api-key"
	}
	if a.Auth.HeaderExtra == "" {
		a.Auth.HeaderExtra = "x-api-extra"
	}
	if a.RateLimit.BookingsPerPhone > 0 && a.RateLimit.BookingWindowMinutes == 0 {
		a.RateLimit.BookingWindowMinutes = 60
	}
}

func (s *SchedulingConfig) applyDefaults() {
	if s.SlotStepMinutes == 0 {
		s.SlotStepMinutes = int(models.DefaultSlotStep / time.Minute)
	}
	if s.MaxBookingDays == 0 {
		s.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if s.LockWaitMillis == 0 {
		s.LockWaitMillis = 3000
	}
}
