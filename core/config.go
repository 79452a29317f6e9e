package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	SignatureMethodMD5Hash = "md5hash"
	SignatureMethodMD5     = "md5"
	SignatureMethodSHA1    = "sha1"
	SignatureMethodSHA256  = "sha256"
	SignatureMethodSHA512  = "sha512"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

type SignatureConfig struct {
	// Disabled skips signature verification, for tests and trusted networks.
	Disabled bool   `koanf:"disabled" mapstructure:"disabled"`
	Secret   string `koanf:"secret" mapstructure:"secret"`
	// Method is md5hash (secret appended to the digest input) or one of the
	// HMAC digests md5, sha1, sha256, sha512.
	Method string `koanf:"method" mapstructure:"method"`
}

type ParserConfig struct {
	MessageTimestampZone string `koanf:"message_timestamp_zone" mapstructure:"message_timestamp_zone"`
}

type ReassemblyConfig struct {
	DeliveredTTL  string `koanf:"delivered_ttl" mapstructure:"delivered_ttl"`
	StaleAfter    string `koanf:"stale_after" mapstructure:"stale_after"`
	PurgeSchedule string `koanf:"purge_schedule" mapstructure:"purge_schedule"`
}

type HTTPConfig struct {
	Address      string `koanf:"address" mapstructure:"address"`
	Path         string `koanf:"path" mapstructure:"path"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type ProviderConfig struct {
	APIKey    string `koanf:"api_key" mapstructure:"api_key"`
	APISecret string `koanf:"api_secret" mapstructure:"api_secret"`
	BaseURL   string `koanf:"base_url" mapstructure:"base_url"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	LogLevel    string           `koanf:"log_level" mapstructure:"log_level"`
	Signature   SignatureConfig  `koanf:"signature" mapstructure:"signature"`
	Parser      ParserConfig     `koanf:"parser" mapstructure:"parser"`
	Reassembly  ReassemblyConfig `koanf:"reassembly" mapstructure:"reassembly"`
	HTTP        HTTPConfig       `koanf:"http" mapstructure:"http"`
	Database    DatabaseConfig   `koanf:"database" mapstructure:"database"`
	Provider    ProviderConfig   `koanf:"provider" mapstructure:"provider"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "smshook",
		LogLevel:    "info",
		Signature: SignatureConfig{
			Method: SignatureMethodMD5Hash,
		},
		Parser: ParserConfig{
			MessageTimestampZone: "UTC",
		},
		Reassembly: ReassemblyConfig{
			DeliveredTTL:  "24h",
			StaleAfter:    "72h",
			PurgeSchedule: "@every 15m",
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			Path:         "/webhooks/sms/inbound",
			MaxBodyBytes: 1 << 20,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "file:smshook.db?cache=shared&_foreign_keys=on",
		},
		Provider: ProviderConfig{
			BaseURL: "https://rest.nexmo.com",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch strings.TrimSpace(strings.ToLower(c.Signature.Method)) {
	case "", SignatureMethodMD5Hash, SignatureMethodMD5, SignatureMethodSHA1, SignatureMethodSHA256, SignatureMethodSHA512:
	default:
		return fmt.Errorf("core: invalid signature.method %q", c.Signature.Method)
	}
	if zone := strings.TrimSpace(c.Parser.MessageTimestampZone); zone != "" {
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("core: invalid parser.message_timestamp_zone %q: %w", zone, err)
		}
	}
	if _, err := parseOptionalDuration("reassembly.delivered_ttl", c.Reassembly.DeliveredTTL); err != nil {
		return err
	}
	if _, err := parseOptionalDuration("reassembly.stale_after", c.Reassembly.StaleAfter); err != nil {
		return err
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("core: http.max_body_bytes must be >= 0")
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "", DriverSQLite, DriverPostgres, DriverPGX:
	default:
		return fmt.Errorf("core: invalid database.driver %q", c.Database.Driver)
	}
	return nil
}

func (c SignatureConfig) Enabled() bool {
	return !c.Disabled
}

func (c ReassemblyConfig) DeliveredTTLDuration() time.Duration {
	value, _ := parseOptionalDuration("reassembly.delivered_ttl", c.DeliveredTTL)
	if value <= 0 {
		return defaultDeliveredTTL
	}
	return value
}

// StaleAfterDuration returns 0 when stale purging is turned off.
func (c ReassemblyConfig) StaleAfterDuration() time.Duration {
	value, _ := parseOptionalDuration("reassembly.stale_after", c.StaleAfter)
	return value
}

func parseOptionalDuration(key string, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("core: invalid %s %q: %w", key, raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("core: %s must be >= 0", key)
	}
	return value, nil
}
