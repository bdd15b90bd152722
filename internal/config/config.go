// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
// Структура создаётся один раз при старте и передаётся в сервисы по указателю.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Storage ---
	// postgres — боевой режим, memory — демо/локальная разработка без БД
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// --- Database ---
	// Дефолт "postgres" — имя сервиса в docker-compose, для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"astrocoins"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"astrocoins"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Vladivostok"`

	// --- Telegram ---
	// Пустой токен = бот не запускается, работает только ядро и планировщик.
	TelegramBotToken        string `envconfig:"TELEGRAM_BOT_TOKEN"`
	BotMaxInflight          int    `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotUpdateTimeoutSeconds int    `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Ledger ---
	LedgerMinTransfer       int64         `envconfig:"LEDGER_MIN_TRANSFER" default:"20"`
	LedgerMaxTransfer       int64         `envconfig:"LEDGER_MAX_TRANSFER" default:"1000000"`
	LedgerCommissionPercent int64         `envconfig:"LEDGER_COMMISSION_PERCENT" default:"5"`
	LedgerLockTimeout       time.Duration `envconfig:"LEDGER_LOCK_TIMEOUT" default:"5s"`
	LedgerHistoryLimit      int           `envconfig:"LEDGER_HISTORY_LIMIT" default:"15"`

	// --- Awards ---
	// Сколько начислений один преподаватель может сделать одному ученику за день
	AwardDailyLimit int `envconfig:"AWARD_DAILY_LIMIT" default:"10"`

	// --- Shop ---
	ShopMaxPrice int64 `envconfig:"SHOP_MAX_PRICE" default:"10000"`
	// Разрешить преподавателям вести каталог в своих городах
	CatalogTeachersManage bool `envconfig:"CATALOG_TEACHERS_MANAGE" default:"false"`

	// --- Link codes ---
	LinkCodeTTL          time.Duration `envconfig:"LINK_CODE_TTL" default:"24h"`
	LinkMaxFailedPerHour int           `envconfig:"LINK_MAX_FAILED_PER_HOUR" default:"3"`

	// --- Jobs ---
	JobsEnabled        bool          `envconfig:"JOBS_ENABLED" default:"true"`
	JobsReconcileSpec  string        `envconfig:"JOBS_RECONCILE_SPEC" default:"30 3 * * *"`
	JobsDeliverySpec   string        `envconfig:"JOBS_DELIVERY_SPEC" default:"0 10 * * 1-5"`
	JobsDeliveryMinAge time.Duration `envconfig:"JOBS_DELIVERY_MIN_AGE" default:"48h"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения.
// Границы «календарного дня» для лимита начислений считаются в нём.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для STORE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TelegramBotToken != "" {
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	if c.LedgerMinTransfer <= 0 {
		return fmt.Errorf("LEDGER_MIN_TRANSFER должен быть > 0")
	}
	// Сумма с комиссией до 100% должна помещаться в int64
	if c.LedgerMaxTransfer < c.LedgerMinTransfer || c.LedgerMaxTransfer > math.MaxInt64/2 {
		return fmt.Errorf("LEDGER_MAX_TRANSFER должен быть в диапазоне %d..%d", c.LedgerMinTransfer, int64(math.MaxInt64/2))
	}
	if c.LedgerCommissionPercent < 0 || c.LedgerCommissionPercent > 100 {
		return fmt.Errorf("LEDGER_COMMISSION_PERCENT должен быть в диапазоне 0..100")
	}
	if c.AwardDailyLimit <= 0 {
		return fmt.Errorf("AWARD_DAILY_LIMIT должен быть > 0")
	}
	if c.ShopMaxPrice <= 0 {
		return fmt.Errorf("SHOP_MAX_PRICE должен быть > 0")
	}
	if _, err := time.LoadLocation(c.AppTimezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default возвращает конфигурацию со значениями по умолчанию без чтения окружения.
// Используется в тестах и в демо-режиме.
func Default() *Config {
	return &Config{
		StoreDriver:             StoreMemory,
		AppEnv:                  "test",
		AppLogLevel:             "info",
		AppTimezone:             "UTC",
		BotMaxInflight:          64,
		BotUpdateTimeoutSeconds: 60,
		RateLimitRequests:       10,
		RateLimitWindow:         time.Minute,
		LedgerMinTransfer:       20,
		LedgerMaxTransfer:       1000000,
		LedgerCommissionPercent: 5,
		LedgerLockTimeout:       5 * time.Second,
		LedgerHistoryLimit:      15,
		AwardDailyLimit:         10,
		ShopMaxPrice:            10000,
		LinkCodeTTL:             24 * time.Hour,
		LinkMaxFailedPerHour:    3,
		JobsReconcileSpec:       "30 3 * * *",
		JobsDeliverySpec:        "0 10 * * 1-5",
		JobsDeliveryMinAge:      48 * time.Hour,
	}
}
