package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr     string   // API bind address, e.g. ":8000"
	LogDir   string   // logs directory
	LogLevel string   // debug | info | warn | error
	URLs     []string // monitored endpoints, deduplicated

	DBDriver          string        // memory | postgres | sqlite
	DatabaseURL       string        // postgres DSN or sqlite file path
	DBConnectAttempts int           // startup connect attempts
	DBConnectDelay    time.Duration // fixed delay between connect attempts

	CheckInterval       time.Duration // end of one tick to start of the next
	HTTPTimeout         time.Duration // per-probe timeout
	RetryAttempts       int           // probe attempts per tick
	RetryBackoff        time.Duration // backoff between attempts
	MaxConcurrentChecks int           // 0 = unbounded

	AllowedOrigins []string // CORS; empty allows all
	PublicRPM      int      // per-IP requests per minute, 0 disables
	PublicBurst    int
}

func FromEnv() Config {
	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	logLevel := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if logLevel == "" {
		logLevel = "info"
	}

	// Database (empty means use in-memory store)
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = DriverMemory
		if db != "" {
			driver = DriverPostgres
		}
	}

	return Config{
		Addr:     addr,
		LogDir:   logDir,
		LogLevel: logLevel,
		URLs:     ParseURLs(os.Getenv("URLS")),

		DBDriver:          driver,
		DatabaseURL:       db,
		DBConnectAttempts: envInt("DB_CONNECT_ATTEMPTS", 15, 1),
		DBConnectDelay:    envMillis("DB_CONNECT_DELAY_MS", 2*time.Second),

		CheckInterval:       envMillis("CHECK_INTERVAL_MS", 60*time.Second),
		HTTPTimeout:         envMillis("HTTP_TIMEOUT_MS", 10*time.Second),
		RetryAttempts:       envInt("RETRY_ATTEMPTS", 1, 1),
		RetryBackoff:        envMillis("RETRY_BACKOFF_MS", 300*time.Millisecond),
		MaxConcurrentChecks: envInt("MAX_CONCURRENT_CHECKS", 0, 0),

		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		PublicRPM:      envInt("PUBLIC_RPM", 0, 0),
		PublicBurst:    envInt("PUBLIC_BURST", 60, 1),
	}
}

// ParseURLs splits a comma-separated list, trims entries, drops empty ones
// and removes exact duplicates while keeping first-seen order.
func ParseURLs(raw string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.LogDir, validation.Required),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.URLs, validation.Each(is.RequestURL, validation.By(validateTargetURL))),
		validation.Field(&c.DBDriver, validation.Required, validation.In(DriverMemory, DriverPostgres, DriverSQLite)),
		validation.Field(&c.DatabaseURL, validation.When(c.DBDriver != DriverMemory, validation.Required)),
		validation.Field(&c.DBConnectAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.CheckInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.HTTPTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RetryAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxConcurrentChecks, validation.Min(0)),
	)
}

func validateTargetURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	return nil
}

func envInt(key string, def, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= min {
			return n
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
