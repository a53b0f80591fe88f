package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port          string
	AllowedOrigin string
	LogLevel      string
	LogFormat     string

	StoreBackend  string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret string
	AuthIssuer string

	Tax      TaxConfig
	Customer CustomerConfig
	Checkout CheckoutConfig

	ReportTimezone         string
	SummaryCacheTTLSeconds int
	SessionTTLMinutes      int
}

// TaxConfig is the part of the tax law that changes first; none of it is compiled in.
type TaxConfig struct {
	Strategy         domain.TaxStrategy
	BracketThreshold decimal.Decimal
	LowRate          domain.TaxRate
	HighRate         domain.TaxRate
	Rates            []domain.TaxRate
}

type CustomerConfig struct {
	RequireName  bool
	RequirePhone bool
	PhoneDigits  int
	PhoneRegion  string
}

type CheckoutConfig struct {
	PersistAttempts    int
	RetryBackoffMillis int
	LockTTLSeconds     int
}

// Load reads a .env file when one exists and then the process environment.
// Malformed numeric values fall back to their defaults.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	threshold, err := decimal.NewFromString(getEnv("TAX_BRACKET_THRESHOLD", "2500"))
	if err != nil || threshold.IsNegative() {
		threshold = decimal.NewFromInt(2500)
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "smarttax"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		AuthSecret: strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AuthIssuer: strings.TrimSpace(os.Getenv("AUTH_ISSUER")),

		Tax: TaxConfig{
			Strategy:         domain.TaxStrategy(strings.ToLower(getEnv("TAX_STRATEGY", string(domain.TaxStrategyPerItem)))),
			BracketThreshold: threshold,
			LowRate:          domain.TaxRate(getEnvInt("TAX_LOW_RATE", 5, 0)),
			HighRate:         domain.TaxRate(getEnvInt("TAX_HIGH_RATE", 18, 0)),
			Rates:            parseRates(getEnv("TAX_RATES", "5,18")),
		},
		Customer: CustomerConfig{
			RequireName:  getEnvBool("CUSTOMER_REQUIRE_NAME", false),
			RequirePhone: getEnvBool("CUSTOMER_REQUIRE_PHONE", false),
			PhoneDigits:  getEnvInt("CUSTOMER_PHONE_DIGITS", 10, 1),
			PhoneRegion:  strings.ToUpper(getEnv("CUSTOMER_PHONE_REGION", "IN")),
		},
		Checkout: CheckoutConfig{
			PersistAttempts:    getEnvInt("CHECKOUT_PERSIST_ATTEMPTS", 3, 1),
			RetryBackoffMillis: getEnvInt("CHECKOUT_RETRY_BACKOFF_MS", 200, 0),
			LockTTLSeconds:     getEnvInt("CHECKOUT_LOCK_TTL_SECONDS", 30, 1),
		},

		ReportTimezone:         getEnv("REPORT_TIMEZONE", "UTC"),
		SummaryCacheTTLSeconds: getEnvInt("SUMMARY_CACHE_TTL_SECONDS", 20, 1),
		SessionTTLMinutes:      getEnvInt("SESSION_TTL_MINUTES", 480, 1),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Checkout.RetryBackoffMillis) * time.Millisecond
}

func (c Config) SummaryCacheTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLSeconds) * time.Second
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// ReportLocation resolves REPORT_TIMEZONE, falling back to UTC.
func (c Config) ReportLocation() (*time.Location, error) {
	if c.ReportTimezone == "" || strings.EqualFold(c.ReportTimezone, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(strings.TrimSpace(getEnv(key, strconv.Itoa(fallback))))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, strconv.FormatBool(fallback))))
	if err != nil {
		return fallback
	}
	return val
}

func parseRates(raw string) []domain.TaxRate {
	rates := make([]domain.TaxRate, 0, 4)
	seen := make(map[domain.TaxRate]struct{})
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			continue
		}
		rate := domain.TaxRate(n)
		if _, dup := seen[rate]; dup {
			continue
		}
		seen[rate] = struct{}{}
		rates = append(rates, rate)
	}
	if len(rates) == 0 {
		return []domain.TaxRate{5, 18}
	}
	return rates
}
