package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env    string
	DB     db
	Server server
	Logger logger
	Events events
}

type db struct {
	DatabaseURI string `env:"DATABASE_URI"`
	Migrations  string `env:"MIGRATIONS_PATH"`
}

type server struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT_SECONDS"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT_SECONDS"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT_SECONDS"`
}

type logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type events struct {
	MaxBatchSize int `env:"EVENTS_MAX_BATCH"`
}

// MustLoad читает .env (если есть) и переменные окружения
func MustLoad() *Config {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	return Load(v)
}

// Load собирает конфигурацию из viper, подставляя значения по умолчанию
func Load(v *viper.Viper) *Config {
	v.SetDefault("run_address", ":8080")
	v.SetDefault("migrations_path", "migrations")
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_timeout_seconds", 10)
	v.SetDefault("write_timeout_seconds", 30)
	v.SetDefault("shutdown_timeout_seconds", 10)
	v.SetDefault("events_max_batch", 500)

	return &Config{
		Env: v.GetString("app_env"),
		DB: db{
			DatabaseURI: v.GetString("database_uri"),
			Migrations:  v.GetString("migrations_path"),
		},
		Server: server{
			RunAddress:      v.GetString("run_address"),
			ReadTimeout:     time.Duration(v.GetInt("read_timeout_seconds")) * time.Second,
			WriteTimeout:    time.Duration(v.GetInt("write_timeout_seconds")) * time.Second,
			ShutdownTimeout: time.Duration(v.GetInt("shutdown_timeout_seconds")) * time.Second,
		},
		Logger: logger{LogLevel: v.GetString("log_level")},
		Events: events{MaxBatchSize: v.GetInt("events_max_batch")},
	}
}
