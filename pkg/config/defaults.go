package config

import (
	"strings"

	"github.com/hnetwork/hnetd/pkg/server"
	"github.com/hnetwork/hnetd/pkg/store"
)

// Default ports. The listener default matches what shipped clients dial; the
// metrics default is the conventional Prometheus scrape port.
const (
	DefaultServerPort  = 8123
	DefaultMetricsPort = 9090
)

// ApplyDefaults fills in default values for any unset configuration fields.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	cfg.Database.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(logging *LoggingConfig) {
	if logging.Level == "" {
		logging.Level = "INFO"
	}
	logging.Level = strings.ToUpper(logging.Level)

	if logging.Format == "" {
		logging.Format = "text"
	}
	if logging.Output == "" {
		logging.Output = "stdout"
	}
}

func applyServerDefaults(srv *server.Config) {
	srv.ApplyDefaults()
	// The server layer leaves port 0 alone (ephemeral bind for tests); a
	// deployed daemon gets the well-known port here.
	if srv.Port == 0 {
		srv.Port = DefaultServerPort
	}
}

func applyMetricsDefaults(m *MetricsConfig) {
	if m.Enabled && m.Port == 0 {
		m.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a configuration with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
