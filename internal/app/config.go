package app

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type APIConfig struct {
	URL       string `toml:"url" validate:"required,url"`
	Client    string `toml:"client" validate:"required"`
	ClientKey string `toml:"client_key" validate:"required"`
	Start     string `toml:"start" validate:"required"`
	End       string `toml:"end" validate:"required"`
	SSLVerify bool   `toml:"ssl_verify"`

	TimeoutSeconds     int  `toml:"timeout_seconds" validate:"gte=0"`
	MaxRetries         *int `toml:"max_retries" validate:"omitempty,gte=0"`
	BackoffBaseSeconds int  `toml:"backoff_base_seconds" validate:"gte=0"`
	MaxBackoffSeconds  int  `toml:"max_backoff_seconds" validate:"gte=0"`
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	DSN string `toml:"dsn" validate:"required"`
}

type RedisConfig struct {
	URL string `toml:"url" validate:"omitempty,url"`
}

type ReportConfig struct {
	SpreadsheetID   string `toml:"spreadsheet_id" validate:"required"`
	CredentialsFile string `toml:"credentials_file" validate:"required"`
	BackupPath      string `toml:"backup_path" validate:"required"`
}

type SMTPConfig struct {
	Server         string `toml:"server"`
	Port           int    `toml:"port" validate:"gte=0,lte=65535"`
	SenderEmail    string `toml:"sender_email" validate:"omitempty,email"`
	SenderPassword string `toml:"sender_password"`
	RecipientEmail string `toml:"recipient_email" validate:"omitempty,email"`
}

// Complete reports whether every setting needed to send mail is present.
func (c SMTPConfig) Complete() bool {
	return c.Server != "" && c.Port != 0 && c.SenderEmail != "" &&
		c.SenderPassword != "" && c.RecipientEmail != ""
}

type Config struct {
	// API and Report are checked by the job that needs them.
	API      APIConfig      `toml:"api" validate:"-"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Report   ReportConfig   `toml:"report" validate:"-"`
	SMTP     SMTPConfig     `toml:"smtp"`

	Metrics struct {
		PushgatewayURL string `toml:"pushgateway_url" validate:"omitempty,url"`
		ListenAddr     string `toml:"listen_addr"`
	} `toml:"metrics"`

	Schedule struct {
		Cron string `toml:"cron"`
	} `toml:"schedule"`
}

var validate = validator.New()

// LoadConfig reads the TOML file at path when it exists, applies environment
// overrides and defaults, and validates the settings shared by both jobs.
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug.Printf("Config file %s not found, using environment only", path)
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error reading config file %s\n> Error: %w", path, err)
		}
	}

	if err := applyEnv(&config, os.LookupEnv); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger.Debug.Printf("Loaded config: api=%s database=%s redis=%t smtp=%t",
		config.API.URL, redactDSN(config.Database.DSN), config.Redis.URL != "", config.SMTP.Complete())

	return &config, nil
}

// ValidateIngest checks the settings only the ingest job uses.
func (c *Config) ValidateIngest() error {
	if err := validate.Struct(c.API); err != nil {
		return fmt.Errorf("invalid api config: %w", err)
	}
	return nil
}

// ValidateReport checks the settings only the report job uses.
func (c *Config) ValidateReport() error {
	if err := validate.Struct(c.Report); err != nil {
		return fmt.Errorf("invalid report config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 60
	}
	if c.API.MaxRetries == nil {
		retries := 3
		c.API.MaxRetries = &retries
	}
	if c.API.BackoffBaseSeconds == 0 {
		c.API.BackoffBaseSeconds = 1
	}
	if c.API.MaxBackoffSeconds == 0 {
		c.API.MaxBackoffSeconds = 120
	}
	if c.Report.CredentialsFile == "" {
		c.Report.CredentialsFile = "credentials.json"
	}
	if c.Report.BackupPath == "" {
		c.Report.BackupPath = "metrics_backup.csv"
	}
	if c.SMTP.Port == 0 && c.SMTP.Server != "" {
		c.SMTP.Port = 465
	}
}

type lookupFunc func(string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("API_URL", &c.API.URL)
	str("API_CLIENT", &c.API.Client)
	str("API_CLIENT_KEY", &c.API.ClientKey)
	str("START_PARSE", &c.API.Start)
	str("END_PARSE", &c.API.End)
	if v, ok := lookup("SSL_VERIFY"); ok && v != "" {
		c.API.SSLVerify = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	str("DB_DSN", &c.Database.DSN)
	if c.Database.DSN == "" {
		dsn, err := postgresDSNFromEnv(lookup)
		if err != nil {
			return err
		}
		c.Database.DSN = dsn
	}

	str("REDIS_URL", &c.Redis.URL)
	str("PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)
	str("METRICS_ADDR", &c.Metrics.ListenAddr)
	str("SCHEDULE_CRON", &c.Schedule.Cron)

	str("SPREADSHEET_ID", &c.Report.SpreadsheetID)
	str("GOOGLE_CREDENTIALS", &c.Report.CredentialsFile)
	str("REPORT_BACKUP_PATH", &c.Report.BackupPath)

	str("SMTP_SERVER", &c.SMTP.Server)
	if v, ok := lookup("SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		c.SMTP.Port = port
	}
	str("SENDER_EMAIL", &c.SMTP.SenderEmail)
	str("SENDER_PASSWORD", &c.SMTP.SenderPassword)
	str("RECIPIENT_EMAIL", &c.SMTP.RecipientEmail)

	return nil
}

// postgresDSNFromEnv assembles a DSN from the DB_* variables. It returns ""
// when DB_NAME is not set.
func postgresDSNFromEnv(lookup lookupFunc) (string, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	name := get("DB_NAME", "")
	if name == "" {
		return "", nil
	}
	port := get("DB_PORT", "5432")
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid DB_PORT %q: %w", port, err)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(get("DB_HOST", "localhost"), port),
		Path:   "/" + name,
	}
	if user := get("DB_USER", ""); user != "" {
		if pass, ok := lookup("DB_PASSWORD"); ok && pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	u.RawQuery = url.Values{"sslmode": {get("DB_SSLMODE", "disable")}}.Encode()
	return u.String(), nil
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
