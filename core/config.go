package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string // postgres (lib/pq) | pgx (jackc/pgx stdlib)
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Address         string
		DebugAddress    string
		ShutdownTimeout time.Duration
		SessionTTL      time.Duration
		SessionMaxAge   time.Duration
		PresenceWindow  time.Duration
		UploadDir       string
		DisableCSRF     bool
		// MaxPingFailures consecutive failed /healthz pings stop the server; 0 never does.
		MaxPingFailures int
	}

	AdminConfig struct {
		Email    string
		Password string
	}

	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Debug                     bool
		TestMode                  bool
		AppName                   string
		Build                     string
		SecretKey                 string
		BaseURL                   string
		LogLevel                  string
		ErrorReporter             string // rollbar | sentry
		RollbarToken              string
		SentryDSN                 string
		SendgridAPIKey            string
		TelegramBotToken          string
		PasswordResetTimeoutDelta time.Duration
		Database                  DatabaseConfig
		Server                    ServerConfig
		Admin                     AdminConfig

		defaultFromEmail string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
}

// NewConfig loads the application configuration from the environment,
// optionally seeded by the dotenv file `config/.env.<env>`.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	loadDotEnv(env)

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetEnvPrefix(env)
	v.AutomaticEnv()
	setDefaults(v, env)

	return &Config{
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  env == "TEST",
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		SecretKey:                 v.GetString("secretKey"),
		BaseURL:                   strings.TrimSuffix(v.GetString("baseURL"), "/"),
		LogLevel:                  v.GetString("logLevel"),
		ErrorReporter:             strings.ToLower(v.GetString("errorReporter")),
		RollbarToken:              v.GetString("rollbarToken"),
		SentryDSN:                 v.GetString("sentryDsn"),
		SendgridAPIKey:            v.GetString("sendgridApiKey"),
		TelegramBotToken:          v.GetString("telegramBotToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTls"),
		},
		Server: ServerConfig{
			Address:         v.GetString("serverAddress"),
			DebugAddress:    v.GetString("serverDebugAddress"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
			SessionTTL:      v.GetDuration("sessionTtl"),
			SessionMaxAge:   v.GetDuration("sessionMaxAge"),
			PresenceWindow:  v.GetDuration("presenceWindow"),
			UploadDir:       v.GetString("uploadDir"),
			DisableCSRF:     v.GetBool("disableCsrf"),
			MaxPingFailures: v.GetInt("maxPingFailures"),
		},
		Admin: AdminConfig{
			Email:    strings.ToLower(v.GetString("adminEmail")),
			Password: v.GetString("adminPassword"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("appName", "Escola")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "x8#q-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$ceg-escola")
	v.SetDefault("baseURL", "http://localhost:8000")
	v.SetDefault("logLevel", "info")
	v.SetDefault("errorReporter", "rollbar")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "escola")
	v.SetDefault("dbUser", "escola")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTls", env == "DEV" || env == "TEST")

	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugAddress", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("sessionTtl", 12*time.Hour)
	v.SetDefault("sessionMaxAge", 7*24*time.Hour)
	v.SetDefault("presenceWindow", 15*time.Minute)
	v.SetDefault("uploadDir", "uploads")
	v.SetDefault("disableCsrf", env == "TEST")
	v.SetDefault("maxPingFailures", 5)

	v.SetDefault("adminEmail", "admin@escola.com")
	v.SetDefault("adminPassword", "Trocar123")
}

// loadDotEnv loads config/.env.<env> if it exists (ignored if it does not).
func loadDotEnv(env string) {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
}

// NewTestConfig returns a configuration suitable for tests: no I/O, no env lookups.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Debug:                     true,
		TestMode:                  true,
		AppName:                   "Escola",
		Build:                     "test",
		SecretKey:                 "test-secret",
		BaseURL:                   "http://localhost:8000",
		LogLevel:                  "debug",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "noreply@test.test",
		Server: ServerConfig{
			SessionTTL:      12 * time.Hour,
			SessionMaxAge:   7 * 24 * time.Hour,
			PresenceWindow:  15 * time.Minute,
			DisableCSRF:     true,
			MaxPingFailures: 3,
		},
		Admin: AdminConfig{Email: "admin@escola.com", Password: "Trocar123"},
	}
}
