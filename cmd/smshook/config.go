package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-smshook/core"
	"github.com/spf13/viper"
)

const envPrefix = "SMSHOOK"

// viperLoader reads the optional YAML file and SMSHOOK_* environment
// overrides. Keys mirror the config struct, e.g. SMSHOOK_SIGNATURE_SECRET.
type viperLoader struct {
	path string
}

func newViperLoader(path string) *viperLoader {
	return &viperLoader{path: strings.TrimSpace(path)}
}

func (l *viperLoader) LoadRaw(context.Context) (map[string]any, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for key, value := range configKeys(core.DefaultConfig()) {
		v.SetDefault(key, value)
	}

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
	}
	return v.AllSettings(), nil
}

func configKeys(cfg core.Config) map[string]any {
	return map[string]any{
		"service_name":                  cfg.ServiceName,
		"log_level":                     cfg.LogLevel,
		"signature.disabled":            cfg.Signature.Disabled,
		"signature.secret":              cfg.Signature.Secret,
		"signature.method":              cfg.Signature.Method,
		"parser.message_timestamp_zone": cfg.Parser.MessageTimestampZone,
		"reassembly.delivered_ttl":      cfg.Reassembly.DeliveredTTL,
		"reassembly.stale_after":        cfg.Reassembly.StaleAfter,
		"reassembly.purge_schedule":     cfg.Reassembly.PurgeSchedule,
		"http.address":                  cfg.HTTP.Address,
		"http.path":                     cfg.HTTP.Path,
		"http.max_body_bytes":           cfg.HTTP.MaxBodyBytes,
		"database.driver":               cfg.Database.Driver,
		"database.dsn":                  cfg.Database.DSN,
		"database.debug":                cfg.Database.Debug,
		"provider.api_key":              cfg.Provider.APIKey,
		"provider.api_secret":           cfg.Provider.APISecret,
		"provider.base_url":             cfg.Provider.BaseURL,
	}
}

// loadConfig resolves the effective configuration and the provider that
// produced it, so the service can be built from the same source.
func loadConfig(ctx context.Context, path string) (core.Config, core.ConfigProvider, error) {
	provider := core.NewCfgxConfigProvider(newViperLoader(path))
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, provider, nil
}
