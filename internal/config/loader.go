package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

const envPrefix = "SHIFTLINE_"

// Config captures environment driven configuration values for the chat service.
type Config struct {
	HTTPPort              int           `env:"HTTP_PORT" envDefault:"8080"`
	SQLiteDSN             string        `env:"SQLITE_DSN" envDefault:"shiftline.db"`
	JWTSecret             string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer             string        `env:"JWT_ISSUER" envDefault:"shiftline"`
	TokenTTL              time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	HandshakeTimeout      time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"5s"`
	PreviewLength         int           `env:"PREVIEW_LENGTH" envDefault:"80"`
	NotificationRetention time.Duration `env:"NOTIFICATION_RETENTION" envDefault:"720h"`
	RetentionSchedule     string        `env:"RETENTION_SCHEDULE" envDefault:"@daily"`
	SocketRate            float64       `env:"SOCKET_RATE" envDefault:"5"`
	SocketBurst           int           `env:"SOCKET_BURST" envDefault:"10"`
	AllowedOrigins        []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat             string        `env:"LOG_FORMAT" envDefault:"json"`
	OTelEndpoint          string        `env:"OTEL_ENDPOINT"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// TracingEnabled reports whether spans are exported.
func (c Config) TracingEnabled() bool {
	return strings.TrimSpace(c.OTelEndpoint) != ""
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Missing required values and values
// that fail to parse or validate are reported together with localized
// messages naming the offending variables.
func Load() (Config, error) {
	return load(env.Options{Prefix: envPrefix})
}

// LoadFrom parses configuration from the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Prefix: envPrefix, Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		var agg env.AggregateError
		if !errors.As(err, &agg) {
			return Config{}, fmt.Errorf("parse env: %w", err)
		}
		for _, e := range agg.Errors {
			switch typed := e.(type) {
			case env.EnvVarIsNotSetError:
				missing = append(missing, typed.Key)
			case env.EmptyEnvVarError:
				missing = append(missing, typed.Key)
			case env.ParseError:
				invalid = append(invalid, envKey(typed.Name))
			default:
				return Config{}, fmt.Errorf("parse env: %w", e)
			}
		}
	}

	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	if cfg.JWTSecret == "" && !slices.Contains(missing, envKey("JWTSecret")) {
		missing = append(missing, envKey("JWTSecret"))
	}
	invalid = appendUnique(invalid, cfg.validate()...)
	sortByFieldOrder(invalid)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// validate returns the variables whose parsed values are out of range.
func (c Config) validate() []string {
	var invalid []string
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, envKey("HTTPPort"))
	}
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		invalid = append(invalid, envKey("SQLiteDSN"))
	}
	for field, d := range map[string]time.Duration{
		"TokenTTL":              c.TokenTTL,
		"HandshakeTimeout":      c.HandshakeTimeout,
		"NotificationRetention": c.NotificationRetention,
		"ShutdownTimeout":       c.ShutdownTimeout,
	} {
		if d <= 0 {
			invalid = append(invalid, envKey(field))
		}
	}
	if c.PreviewLength <= 0 {
		invalid = append(invalid, envKey("PreviewLength"))
	}
	if _, err := cron.ParseStandard(c.RetentionSchedule); err != nil {
		invalid = append(invalid, envKey("RetentionSchedule"))
	}
	if c.SocketRate <= 0 {
		invalid = append(invalid, envKey("SocketRate"))
	}
	if c.SocketBurst <= 0 {
		invalid = append(invalid, envKey("SocketBurst"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid = append(invalid, envKey("LogLevel"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		invalid = append(invalid, envKey("LogFormat"))
	}
	return invalid
}

// envKey returns the prefixed variable name bound to a Config field.
func envKey(field string) string {
	sf, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	name, _, _ := strings.Cut(sf.Tag.Get("env"), ",")
	return envPrefix + name
}

func sortByFieldOrder(keys []string) {
	t := reflect.TypeOf(Config{})
	order := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		order[envKey(t.Field(i).Name)] = i
	}
	slices.SortStableFunc(keys, func(a, b string) int { return order[a] - order[b] })
}

func appendUnique(values []string, more ...string) []string {
	for _, v := range more {
		if !slices.Contains(values, v) {
			values = append(values, v)
		}
	}
	return values
}
