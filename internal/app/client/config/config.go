package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultLogLevel      = "warn"
	defaultEnv           = "local"
	defaultConfigDir     = ".shopnav"
)

type Config struct {
	Env           string        `mapstructure:"app_env"`
	ServerAddress string        `mapstructure:"server_address"`
	EnableTLS     bool          `mapstructure:"enable_tls"`
	LogLevel      string        `mapstructure:"log_level"`
	StoreID       int64         `mapstructure:"store_id"`
	ConfigDir     string        `mapstructure:"config_dir"`
	TokenPath     string        `mapstructure:"token_path"`
	DataPath      string        `mapstructure:"data_path"`
	SyncInterval  time.Duration `mapstructure:"sync_interval_seconds"`
	MaxAttempts   int           `mapstructure:"sync_max_attempts"`
	BaseDelay     time.Duration `mapstructure:"sync_base_delay_ms"`
	BatchSize     int           `mapstructure:"sync_batch_size"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout_seconds"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// MustLoad загружает конфигурацию клиента: .env, переменные окружения и необязательный yaml-файл
func MustLoad(configFile string) *Config {
	// Загружаем .env файл если существует
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			panic(fmt.Sprintf("Ошибка чтения файла конфигурации: %v", err))
		}
	}

	cfg, err := Load(v)
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}

	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		fmt.Printf("Ошибка создания директории конфигурации: %v\n", err)
	}

	return cfg
}

// Load собирает конфигурацию из viper и проверяет ее
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("app_env", defaultEnv)
	v.SetDefault("server_address", defaultServerAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("config_dir", defaultConfigDir)
	v.SetDefault("enable_tls", false)
	v.SetDefault("sync_interval_seconds", 60)
	v.SetDefault("sync_max_attempts", 3)
	v.SetDefault("sync_base_delay_ms", 1000)
	v.SetDefault("sync_batch_size", 100)
	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("retention_days", 7)

	configDir := v.GetString("config_dir")
	if configDir == defaultConfigDir {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, configDir)
	}

	cfg := &Config{
		Env:           v.GetString("app_env"),
		ServerAddress: v.GetString("server_address"),
		EnableTLS:     v.GetBool("enable_tls"),
		LogLevel:      v.GetString("log_level"),
		StoreID:       v.GetInt64("store_id"),
		ConfigDir:     configDir,
		TokenPath:     filepath.Join(configDir, "token"),
		DataPath:      filepath.Join(configDir, "replica.db"),
		SyncInterval:  time.Duration(v.GetInt("sync_interval_seconds")) * time.Second,
		MaxAttempts:   v.GetInt("sync_max_attempts"),
		BaseDelay:     time.Duration(v.GetInt("sync_base_delay_ms")) * time.Millisecond,
		BatchSize:     v.GetInt("sync_batch_size"),
		HTTPTimeout:   time.Duration(v.GetInt("http_timeout_seconds")) * time.Second,
		RetentionDays: v.GetInt("retention_days"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ServerAddress == "" {
		errs = append(errs, fmt.Errorf("server_address не может быть пустым"))
	}
	if c.StoreID < 0 {
		errs = append(errs, fmt.Errorf("store_id не может быть отрицательным"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("sync_max_attempts должен быть не меньше 1"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("sync_batch_size должен быть не меньше 1"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http_timeout_seconds должен быть положительным"))
	}
	return errors.Join(errs...)
}

// BaseURL адрес сервера со схемой
func (c *Config) BaseURL() string {
	if c.EnableTLS {
		return "https://" + c.ServerAddress
	}
	return "http://" + c.ServerAddress
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
