package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	// BootstrapDemo seeds a demo user and group on startup for local
	// development.
	BootstrapDemo bool

	SMTP SMTPConfig

	Collection CollectionConfig
	Withdrawal WithdrawalConfig
	Gate       GateConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// CollectionConfig tunes the collection scheduler and attempt executor.
type CollectionConfig struct {
	RunInterval  time.Duration
	BatchSize    int
	ProcessorFee int64
	PlatformFee  int64
	// FireOnLateEnable charges a member in the same run when auto-pay is
	// enabled after the effective due instant already passed. Default is to
	// wait for the next occurrence.
	FireOnLateEnable bool
	// DefaulterScopeStrict widens the defaulter check on enable_auto_pay
	// from the target group to all groups the user belongs to.
	DefaulterScopeStrict bool
}

type WithdrawalConfig struct {
	HoldDuration  time.Duration
	SweepInterval time.Duration
	BatchSize     int
}

type GateConfig struct {
	ProofTTL time.Duration
	CodeTTL  time.Duration
	// AttemptRate and AttemptBurst bound password and code attempts per user
	// when redis is configured.
	AttemptRate  float64
	AttemptBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "kolektiva"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kolektiva"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		BootstrapDemo: getenvBool("BOOTSTRAP_DEMO_DATA", false),

		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@kolektiva.app"),
		},

		Collection: CollectionConfig{
			RunInterval:          getenvDuration("COLLECTION_RUN_INTERVAL", 24*time.Hour),
			BatchSize:            getenvInt("COLLECTION_BATCH_SIZE", 50),
			ProcessorFee:         getenvInt64("COLLECTION_PROCESSOR_FEE", 0),
			PlatformFee:          getenvInt64("COLLECTION_PLATFORM_FEE", 0),
			FireOnLateEnable:     getenvBool("COLLECTION_FIRE_ON_LATE_ENABLE", false),
			DefaulterScopeStrict: getenvBool("DEFAULTER_SCOPE_STRICT", true),
		},

		Withdrawal: WithdrawalConfig{
			HoldDuration:  getenvDuration("WITHDRAWAL_HOLD_DURATION", 24*time.Hour),
			SweepInterval: getenvDuration("WITHDRAWAL_SWEEP_INTERVAL", time.Hour),
			BatchSize:     getenvInt("WITHDRAWAL_BATCH_SIZE", 50),
		},

		Gate: GateConfig{
			ProofTTL:     getenvDuration("GATE_PROOF_TTL", 5*time.Minute),
			CodeTTL:      getenvDuration("GATE_CODE_TTL", 10*time.Minute),
			AttemptRate:  getenvFloat("GATE_ATTEMPT_RATE", 0.5),
			AttemptBurst: getenvInt("GATE_ATTEMPT_BURST", 5),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
