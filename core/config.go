package core

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	// Config holds all application settings, resolved once at startup.
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string // DEV (default), TEST, QA, PROD
		AppName          string
		Build            string
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Batch    BatchConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// BatchConfig drives the cron jobs: the inactivity mailer, the retry
	// runner and the student sync.
	BatchConfig struct {
		MaxAttempts     int
		Timezone        string // reference timezone for week windows
		InactivityWeeks int
		OperatorName    string
		OperatorEmail   string
		SlackWebhookURL string
		SyncURL         string
		SyncToken       string

		// 6-field cron specs (with seconds)
		InactivitySchedule string
		RetrySchedule      string
		SyncSchedule       string
	}
)

// Address returns the host:port the database listens on.
func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

// OperatorAddress is the recipient of run reports and aggregate candidate
// reports.
func (c *Config) OperatorAddress() mail.Address {
	return mail.Address{Name: c.Batch.OperatorName, Address: c.Batch.OperatorEmail}
}

// NewConfig resolves the configuration from defaults, the config/.env.<env>
// file (if present) and the environment, in increasing priority.
func NewConfig(build string) (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("appName", "Elimu")
	v.SetDefault("secretKey", "wq83=bp$u7^m#)0d+yn&f@4!kt1(z*5evh9r&s6x_ca2jg")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", "localhost:9000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "elimu")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseUser", "postgres")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "postgres")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("batchMaxAttempts", 4)
	v.SetDefault("batchTimezone", "Australia/Brisbane")
	v.SetDefault("batchInactivityWeeks", 9)
	v.SetDefault("batchOperatorName", "Course Admin")
	v.SetDefault("batchOperatorEmail", "admin@localhost")
	v.SetDefault("batchSlackWebhookURL", "")
	v.SetDefault("batchSyncURL", "")
	v.SetDefault("batchSyncToken", "")
	v.SetDefault("batchInactivitySchedule", "0 0 7 * * *")
	v.SetDefault("batchRetrySchedule", "0 30 7 * * *")
	v.SetDefault("batchSyncSchedule", "0 0 2 * * *")

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	env = strings.ToUpper(env)
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing defaultFromEmail")
	}

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		Env:              env,
		AppName:          v.GetString("appName"),
		Build:            build,
		WorkDir:          workDir,
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: *from,
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Address:                   v.GetString("serverAddress"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Batch: BatchConfig{
			MaxAttempts:        v.GetInt("batchMaxAttempts"),
			Timezone:           v.GetString("batchTimezone"),
			InactivityWeeks:    v.GetInt("batchInactivityWeeks"),
			OperatorName:       v.GetString("batchOperatorName"),
			OperatorEmail:      v.GetString("batchOperatorEmail"),
			SlackWebhookURL:    v.GetString("batchSlackWebhookURL"),
			SyncURL:            v.GetString("batchSyncURL"),
			SyncToken:          v.GetString("batchSyncToken"),
			InactivitySchedule: v.GetString("batchInactivitySchedule"),
			RetrySchedule:      v.GetString("batchRetrySchedule"),
			SyncSchedule:       v.GetString("batchSyncSchedule"),
		},
	}
	if conf.Batch.MaxAttempts < 1 {
		return nil, fmt.Errorf("batchMaxAttempts must be at least 1, got %d", conf.Batch.MaxAttempts)
	}
	return conf, nil
}
