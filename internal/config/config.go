package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Environment     string `yaml:"env"`
	DBDriver        string `yaml:"db_driver"`
	DBDSN           string `yaml:"db_dsn"`
	HTTPAddr        string `yaml:"http_addr"`
	DefaultTimezone string `yaml:"default_timezone"`
	// FeedDir: каталог для .ics-фидов; пустой отключает публикацию
	FeedDir       string `yaml:"feed_dir"`
	FeedCron      string `yaml:"feed_cron"`
	LookaheadDays int    `yaml:"lookahead_days"`
}

func defaults() *Config {
	return &Config{
		Environment:     "development",
		DBDriver:        DriverPostgres,
		HTTPAddr:        ":8080",
		DefaultTimezone: "UTC",
		FeedCron:        "@every 15m",
		LookaheadDays:   365,
	}
}

// Load собирает конфиг: значения по умолчанию, затем YAML-файл из CONFIG_FILE (если задан),
// затем переменные окружения (в том числе из .env)
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Environment, "ENV")
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBDSN, "DB_DSN")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.DefaultTimezone, "DEFAULT_TIMEZONE")
	setString(&c.FeedDir, "FEED_DIR")
	setString(&c.FeedCron, "FEED_CRON")

	if v := os.Getenv("LOOKAHEAD_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LOOKAHEAD_DAYS: %w", err)
		}
		c.LookaheadDays = days
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate проверяет обязательные поля и допустимые значения
func (c *Config) Validate() error {
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required but not set")
	}
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.LookaheadDays <= 0 {
		return fmt.Errorf("LOOKAHEAD_DAYS must be positive, got %d", c.LookaheadDays)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}
	return nil
}

// Lookahead: горизонт поиска ближайшего занятия
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.LookaheadDays) * 24 * time.Hour
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
