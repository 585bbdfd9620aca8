// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package config loads the immutable service configuration.
//
// Values are layered, later sources winning: flag defaults, the YAML file
// named by --config, flags set on the command line, then environment
// variables.
package config

import (
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

// Mail drivers.
const (
	MailDriverSMTP  = "smtp"
	MailDriverKafka = "kafka"
	MailDriverLog   = "log"
)

// Defaults.
const (
	DefaultHTTPAddr        = ":3000"
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultAppURL          = "http://localhost:3000"
	DefaultLogFormat       = "json"
	DefaultLogLevel        = "info"
	DefaultSessionTTLDays  = 7
	DefaultVerificationTTL = 24 * time.Hour
	DefaultHashConcurrency = 0 // GOMAXPROCS
	DefaultRateLimitBurst  = 100
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultMailDriver      = MailDriverLog
	DefaultMailFrom        = "MentorHub <no-reply@mentorhub.local>"
	DefaultSMTPPort        = 587
	DefaultKafkaTopic      = "mentorhub.mail.verification"

	minSecretBytes = 32
	redacted       = "[REDACTED]"
)

// Config is built once at startup and shared read-only.
type Config struct {
	Env         string `koanf:"env" env:"APP_ENV" yaml:"env"`
	HTTPAddr    string `koanf:"http-addr" env:"HTTP_ADDR" yaml:"http-addr"`
	MetricsAddr string `koanf:"metrics-addr" env:"METRICS_ADDR" yaml:"metrics-addr"`
	AppURL      string `koanf:"app-url" env:"APP_URL" yaml:"app-url"`
	DatabaseURL string `koanf:"database-url" env:"DATABASE_URL" yaml:"database-url"`
	TrustProxy  bool   `koanf:"trust-proxy" env:"TRUST_PROXY" yaml:"trust-proxy"`

	CORSOrigins []string `koanf:"cors-origins" env:"CORS_ORIGINS" envSeparator:"," yaml:"cors-origins"`

	LogFormat    string `koanf:"log-format" env:"LOG_FORMAT" yaml:"log-format"`
	LogLevel     string `koanf:"log-level" env:"LOG_LEVEL" yaml:"log-level"`
	OTLPEndpoint string `koanf:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp-endpoint"`

	JWTSecret       string        `koanf:"jwt-secret" env:"JWT_SECRET" yaml:"jwt-secret"`
	SessionTTLDays  int           `koanf:"jwt-cookie-expires-in" env:"JWT_COOKIE_EXPIRES_IN" yaml:"jwt-cookie-expires-in"`
	VerificationTTL time.Duration `koanf:"verification-ttl" env:"VERIFICATION_TTL" yaml:"verification-ttl"`
	HashConcurrency int           `koanf:"hash-concurrency" env:"HASH_CONCURRENCY" yaml:"hash-concurrency"`

	RateLimitBurst  int           `koanf:"rate-limit-burst" env:"RATE_LIMIT_BURST" yaml:"rate-limit-burst"`
	RateLimitWindow time.Duration `koanf:"rate-limit-window" env:"RATE_LIMIT_WINDOW" yaml:"rate-limit-window"`

	MailDriver    string   `koanf:"mail-driver" env:"MAIL_DRIVER" yaml:"mail-driver"`
	MailFrom      string   `koanf:"mail-from" env:"MAIL_FROM" yaml:"mail-from"`
	SMTPHost      string   `koanf:"smtp-host" env:"SMTP_HOST" yaml:"smtp-host"`
	SMTPPort      int      `koanf:"smtp-port" env:"SMTP_PORT" yaml:"smtp-port"`
	SMTPUsername  string   `koanf:"smtp-username" env:"SMTP_USERNAME" yaml:"smtp-username"`
	SMTPPassword  string   `koanf:"smtp-password" env:"SMTP_PASSWORD" yaml:"smtp-password"`
	KafkaBrokers  []string `koanf:"kafka-brokers" env:"KAFKA_BROKERS" envSeparator:"," yaml:"kafka-brokers"`
	KafkaTopic    string   `koanf:"kafka-topic" env:"KAFKA_TOPIC" yaml:"kafka-topic"`
	KafkaUsername string   `koanf:"kafka-username" env:"KAFKA_USERNAME" yaml:"kafka-username"`
	KafkaPassword string   `koanf:"kafka-password" env:"KAFKA_PASSWORD" yaml:"kafka-password"`
	KafkaTLS      bool     `koanf:"kafka-tls" env:"KAFKA_TLS" yaml:"kafka-tls"`
}

// RegisterFlags adds every setting to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env", "development", "deployment environment; production enables secure cookies")
	fs.String("http-addr", DefaultHTTPAddr, "API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("app-url", DefaultAppURL, "public base URL used in verification links")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("trust-proxy", false, "use X-Forwarded-For for the client address")
	fs.StringSlice("cors-origins", nil, "browser origins allowed to send credentialed requests (empty = any origin, no credentials)")

	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("otlp-endpoint", "", "OTLP/HTTP trace endpoint (empty = tracing disabled)")

	fs.String("jwt-secret", "", "session signing secret, at least 32 bytes")
	fs.Int("jwt-cookie-expires-in", DefaultSessionTTLDays, "session lifetime in days")
	fs.Duration("verification-ttl", DefaultVerificationTTL, "email verification token lifetime")
	fs.Int("hash-concurrency", DefaultHashConcurrency, "maximum concurrent password hash operations (0 uses GOMAXPROCS)")

	fs.Int("rate-limit-burst", DefaultRateLimitBurst, "requests allowed per client per window")
	fs.Duration("rate-limit-window", DefaultRateLimitWindow, "time to refill a client's full burst")

	fs.String("mail-driver", DefaultMailDriver, "verification mail driver (smtp, kafka or log)")
	fs.String("mail-from", DefaultMailFrom, "sender address for verification mail")
	fs.String("smtp-host", "", "SMTP server host")
	fs.Int("smtp-port", DefaultSMTPPort, "SMTP server port")
	fs.String("smtp-username", "", "SMTP username")
	fs.String("smtp-password", "", "SMTP password")
	fs.StringSlice("kafka-brokers", nil, "Kafka bootstrap brokers")
	fs.String("kafka-topic", DefaultKafkaTopic, "Kafka topic for verification mail events")
	fs.String("kafka-username", "", "Kafka SASL/PLAIN username (empty = no SASL)")
	fs.String("kafka-password", "", "Kafka SASL/PLAIN password")
	fs.Bool("kafka-tls", false, "connect to Kafka over TLS")
}

// Load builds and validates the configuration from the process
// environment. flags may be nil, in which case only defaults, the file and
// the environment apply.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	return LoadWithEnv(path, flags, env.ToMap(os.Environ()))
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, flags *pflag.FlagSet, environ map[string]string) (*Config, error) {
	cfg, err := ReadWithEnv(path, flags, environ)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that need only part of the
// configuration.
func Read(path string, flags *pflag.FlagSet) (*Config, error) {
	return ReadWithEnv(path, flags, env.ToMap(os.Environ()))
}

// ReadWithEnv is Read with an explicit environment.
func ReadWithEnv(path string, flags *pflag.FlagSet, environ map[string]string) (*Config, error) {
	if flags == nil {
		flags = pflag.NewFlagSet("config", pflag.ContinueOnError)
		RegisterFlags(flags)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}
	// Unchanged flags only fill keys the file left unset.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	applyLegacyEnv(&cfg, environ)
	return &cfg, nil
}

// applyLegacyEnv honors the variable names older deployments set.
func applyLegacyEnv(cfg *Config, environ map[string]string) {
	if _, ok := environ["APP_ENV"]; !ok {
		if v := environ["NODE_ENV"]; v != "" {
			cfg.Env = v
		}
	}
	if _, ok := environ["HTTP_ADDR"]; !ok {
		if v := environ["PORT"]; v != "" {
			cfg.HTTPAddr = ":" + v
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = environ["DB_URL"]
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	fail := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch {
	case c.JWTSecret == "":
		return fail("jwt-secret", "JWT_SECRET is required")
	case len(c.JWTSecret) < minSecretBytes:
		return fail("jwt-secret", "JWT_SECRET must be at least %d bytes", minSecretBytes)
	case c.DatabaseURL == "":
		return fail("database-url", "DATABASE_URL is required")
	case c.HTTPAddr == "":
		return fail("http-addr", "http-addr is required")
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fail("log-format", "log-format must be 'json' or 'text', got %q", c.LogFormat)
	case !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)):
		return fail("log-level", "log-level must be debug, info, warn or error, got %q", c.LogLevel)
	case c.SessionTTLDays <= 0:
		return fail("jwt-cookie-expires-in", "session lifetime must be positive, got %d days", c.SessionTTLDays)
	case c.VerificationTTL <= 0:
		return fail("verification-ttl", "verification-ttl must be positive, got %s", c.VerificationTTL)
	case c.HashConcurrency < 0:
		return fail("hash-concurrency", "hash-concurrency must not be negative, got %d", c.HashConcurrency)
	case c.RateLimitBurst <= 0 || c.RateLimitWindow <= 0:
		return fail("rate-limit", "rate-limit-burst and rate-limit-window must be positive")
	}

	if _, err := url.ParseRequestURI(c.AppURL); err != nil {
		return fail("app-url", "app-url must be an absolute URL, got %q", c.AppURL)
	}
	for _, origin := range c.CORSOrigins {
		if u, err := url.ParseRequestURI(origin); err != nil || u.Host == "" {
			return fail("cors-origins", "cors origin must be scheme://host, got %q", origin)
		}
	}

	switch c.MailDriver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.SMTPHost == "" {
			return fail("smtp-host", "SMTP_HOST is required for the smtp mail driver")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fail("smtp-port", "smtp-port out of range: %d", c.SMTPPort)
		}
		if c.MailFrom == "" {
			return fail("mail-from", "mail-from is required for the smtp mail driver")
		}
	case MailDriverKafka:
		if len(c.KafkaBrokers) == 0 {
			return fail("kafka-brokers", "KAFKA_BROKERS is required for the kafka mail driver")
		}
		if c.KafkaTopic == "" {
			return fail("kafka-topic", "kafka-topic is required for the kafka mail driver")
		}
	default:
		return fail("mail-driver", "unknown mail driver %q", c.MailDriver)
	}
	return nil
}

// Production reports whether cookies must be Secure with SameSite=None.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// SessionTTL is the session token and cookie lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLDays) * 24 * time.Hour
}

// Redacted returns a copy with secrets masked, safe to print or log.
func (c *Config) Redacted() Config {
	out := *c
	out.KafkaBrokers = slices.Clone(c.KafkaBrokers)
	out.CORSOrigins = slices.Clone(c.CORSOrigins)
	if out.JWTSecret != "" {
		out.JWTSecret = redacted
	}
	if out.SMTPPassword != "" {
		out.SMTPPassword = redacted
	}
	if out.KafkaPassword != "" {
		out.KafkaPassword = redacted
	}
	if u, err := url.Parse(out.DatabaseURL); err == nil && u.User != nil {
		out.DatabaseURL = u.Redacted()
	} else if err != nil {
		out.DatabaseURL = redacted
	}
	return out
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return out, nil
}
