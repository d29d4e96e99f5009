package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"foodtruck/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Owner      OwnerConfig      `yaml:"owner"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	SeedMenu   []MenuSeedItem   `yaml:"seed_menu"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// OwnerConfig identifies the single privileged address. The address is fixed
// for the lifetime of the ledger; there is no ownership transfer.
type OwnerConfig struct {
	Address string `yaml:"address"`
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

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey maps an API key to the address its requests act as. The ledger
// decides what that address may do; Permissions only gate transport routes.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Address     string   `yaml:"address"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	OrdersSpreadSheetID   string `yaml:"orders_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// MenuSeedItem describes one catalog entry applied to an empty ledger at
// startup. Catalog indices are assigned by insertion order.
type MenuSeedItem struct {
	Name      string          `yaml:"name"`
	Price     int64           `yaml:"price"`
	Inventory int64           `yaml:"inventory"`
	ItemType  models.ItemType `yaml:"item_type"`
}

func Load(configPath string) (*Config, error) {
	// .env подхватывается, если есть; его отсутствие не ошибка
	_ = godotenv.Load(".env")

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

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner.Address) == "" {
		return errors.New("owner address is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	for i, k := range c.API.Auth.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key #%d has empty key", i)
		}
		if strings.TrimSpace(k.Address) == "" {
			return fmt.Errorf("api key '%s' has no address", k.Name)
		}
	}

	return ValidateSeedMenu(c.SeedMenu)
}

func ValidateSeedMenu(items []MenuSeedItem) error {
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return errors.New("seed menu item has empty name")
		}
		if item.Price < 0 {
			return fmt.Errorf("seed menu item '%s' has negative price", item.Name)
		}
		if item.Inventory < 0 {
			return fmt.Errorf("seed menu item '%s' has negative inventory", item.Name)
		}
		if !item.ItemType.Valid() {
			return fmt.Errorf("seed menu item '%s' has unknown item type %d", item.Name, item.ItemType)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	// Адреса сравниваются без учёта регистра; нормализуем один раз здесь
	c.Owner.Address = strings.ToLower(strings.TrimSpace(c.Owner.Address))
	for i := range c.API.Auth.APIKeys {
		c.API.Auth.APIKeys[i].Address = strings.ToLower(strings.TrimSpace(c.API.Auth.APIKeys[i].Address))
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.DefaultRateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.DefaultRateLimitBurst
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
