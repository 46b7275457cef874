package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment        string         `json:"environment"`
	LogLevel           string         `json:"log_level"`
	ServerPort         string         `json:"server_port"`
	DBDriver           string         `json:"db_driver"`
	DBPath             string         `json:"db_path"`
	DBHost             string         `json:"db_host"`
	DBPort             string         `json:"db_port"`
	DBUser             string         `json:"db_user"`
	DBPassword         string         `json:"-"`
	DBName             string         `json:"db_name"`
	DBSSLMode          string         `json:"db_ssl_mode"`
	DBMaxIdleConns     int            `json:"db_max_idle_conns"`
	DBMaxOpenConns     int            `json:"db_max_open_conns"`
	Timezone           string         `json:"timezone"`
	Location           *time.Location `json:"-"`
	APISecret          string         `json:"-"`
	RateLimitPerMinute int            `json:"rate_limit_per_minute"`
	CORSOrigins        []string       `json:"cors_origins"`
	Redis              RedisConfig    `json:"redis"`
	SentryDSN          string         `json:"-"`

	// Bot side
	BotToken      string        `json:"-"`
	BackendURL    string        `json:"backend_url"`
	BotSessionTTL time.Duration `json:"bot_session_ttl"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

// LoadConfig reads every setting shared by the API and the bot. Use
// RequireAPI / RequireBot afterwards to check what a given process needs.
func LoadConfig() error {
	AppConfig = Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServerPort:         getEnv("SERVER_PORT", "8000"),
		DBDriver:           getEnv("DB_DRIVER", "postgres"),
		DBPath:             getEnv("DB_PATH", "tasker.db"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "tasker"),
		DBSSLMode:          getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
		Timezone:           getEnv("APP_TIMEZONE", "UTC"),
		APISecret:          getEnv("API_SECRET", ""),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", nil),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SentryDSN: getEnv("SENTRY_DSN", ""),

		BotToken:      getEnv("BOT_TOKEN", ""),
		BackendURL:    strings.TrimRight(getEnv("BACKEND_URL", "http://127.0.0.1:8000"), "/"),
		BotSessionTTL: getEnvAsDuration("BOT_SESSION_TTL", 24*time.Hour),
	}

	loc, err := time.LoadLocation(AppConfig.Timezone)
	if err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", AppConfig.Timezone, err)
	}
	AppConfig.Location = loc

	logConfig()
	return nil
}

// RequireAPI validates the settings the HTTP server cannot start without.
func RequireAPI() error {
	switch AppConfig.DBDriver {
	case "postgres":
		if AppConfig.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "sqlite":
		if AppConfig.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", AppConfig.DBDriver)
	}
	if AppConfig.Environment == "production" && AppConfig.APISecret == "" {
		return fmt.Errorf("API_SECRET is required in production")
	}
	return nil
}

// RequireBot validates the settings the Telegram bot cannot start without.
func RequireBot() error {
	if AppConfig.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if AppConfig.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	return nil
}

// Location returns the configured zone used for "today" windows, UTC when unset.
func Location() *time.Location {
	if AppConfig.Location == nil {
		return time.UTC
	}
	return AppConfig.Location
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	var err error
	if AppConfig.DBDriver == "sqlite" {
		log.Println("Using sqlite database:", AppConfig.DBPath)
		DB, err = OpenSQLite(AppConfig.DBPath)
	} else {
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			AppConfig.DBHost,
			AppConfig.DBPort,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBSSLMode,
		)
		log.Println("Using connection string:", maskPassword(dsn))
		DB, err = gorm.Open(postgres.Open(dsn), gormConfig())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	return nil
}

// OpenSQLite opens a file backed database, used for local runs and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), gormConfig())
}

func gormConfig() *gorm.Config {
	gormLogLevel := logger.Warn
	if AppConfig.Environment == "production" {
		gormLogLevel = logger.Error
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), gormLogLevel),
	}
}

// newGormLogger keeps lookups that find nothing out of the log; callers map
// gorm.ErrRecordNotFound to 404s themselves.
func newGormLogger(w logger.Writer, level logger.LogLevel) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// CloseDB releases the connection pool opened by ConnectDB.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("invalid value for %s: %v", key, err)
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("invalid value for %s: %v", key, err)
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("invalid value for %s: %v", key, err)
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database (%s): %s@%s:%s/%s",
		AppConfig.DBDriver,
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Timezone: %s, Redis(%t), Sentry(%t), Service token(%t)",
		AppConfig.Timezone,
		AppConfig.Redis.Enabled,
		AppConfig.SentryDSN != "",
		AppConfig.APISecret != "")
}
