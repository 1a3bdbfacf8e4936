package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	// PublicBaseURL is used to build timeline and unsubscribe links inside emails.
	PublicBaseURL string

	// SMTP is optional. When Host is empty the mailer runs in simulated mode:
	// sends are logged and reported successful.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	FromAddr string

	TickInterval   time.Duration
	DrainBatchSize int
	DailyHourUTC   int
	WeeklyHourUTC  int
	WeeklyDay      time.Weekday
	CleanupHourUTC int
	RetentionDays  int

	LogFile  string
	LogLevel string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		SMTPHost: getenv("SMTP_HOST", ""),
		SMTPPort: getenvInt("SMTP_PORT", 587),
		SMTPUser: getenv("SMTP_USER", ""),
		SMTPPass: getenv("SMTP_PASS", ""),
		FromAddr: getenv("MAIL_FROM", "updates@beacon.local"),

		TickInterval:   getenvDuration("SCHEDULER_TICK", 30*time.Second),
		DrainBatchSize: getenvInt("SCHEDULER_DRAIN_BATCH", 10),
		DailyHourUTC:   getenvInt("DAILY_DIGEST_HOUR_UTC", 9),
		WeeklyHourUTC:  getenvInt("WEEKLY_DIGEST_HOUR_UTC", 10),
		WeeklyDay:      time.Weekday(getenvInt("WEEKLY_DIGEST_DAY", int(time.Sunday))),
		CleanupHourUTC: getenvInt("CLEANUP_HOUR_UTC", 3),
		RetentionDays:  getenvInt("JOB_RETENTION_DAYS", 7),

		LogFile:  getenv("LOG_FILE", "beacon.log"),
		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
