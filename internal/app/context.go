package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"meetline/internal/config"
	"meetline/internal/db"
	"meetline/internal/engine"
	"meetline/internal/metrics"
	"meetline/internal/migrate"
)

// overrideKeys are the config paths that flags and MEETLINE_* env vars may
// override, e.g. MEETLINE_ANALYSIS_URL for analysis.url.
var overrideKeys = []string{
	"server.addr",
	"server.base_path",
	"database.driver",
	"database.dsn",
	"analysis.url",
	"analysis.timeout",
	"dictation.locale",
	"client.base_url",
	"client.timeout",
	"log.level",
	"log.format",
}

// BindEnv makes v resolve MEETLINE_* env vars for every overridable key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("MEETLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range overrideKeys {
		_ = v.BindEnv(key)
	}
}

// LoadConfig reads meetline.yml from the workspace, falling back to the
// defaults, then applies overrides found in v.
func LoadConfig(fs afero.Fs, workspace string, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadOptional(fs, workspace)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return cfg, nil
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.base_path") {
		cfg.Server.BasePath = v.GetString("server.base_path")
	}
	if v.IsSet("database.driver") {
		cfg.Database.Driver = v.GetString("database.driver")
	}
	if v.IsSet("database.dsn") {
		cfg.Database.DSN = v.GetString("database.dsn")
	}
	if v.IsSet("analysis.url") {
		cfg.Analysis.URL = v.GetString("analysis.url")
	}
	if v.IsSet("analysis.timeout") {
		cfg.Analysis.Timeout = v.GetDuration("analysis.timeout")
	}
	if v.IsSet("dictation.locale") {
		cfg.Dictation.Locale = v.GetString("dictation.locale")
	}
	if v.IsSet("client.base_url") {
		cfg.Client.BaseURL = v.GetString("client.base_url")
	}
	if v.IsSet("client.timeout") {
		cfg.Client.Timeout = v.GetDuration("client.timeout")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is an opened workspace: database, migrated schema and engine.
type Runtime struct {
	Config *config.Config
	DB     *db.DB
	Engine engine.Engine
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}

// Open prepares the workspace store and builds the engine. reg may be nil.
func Open(ctx context.Context, workspace string, cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if cfg.Database.Driver == "" || cfg.Database.Driver == db.DriverSQLite {
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Log = log
	if reg != nil {
		e.Metrics = metrics.NewBackend(reg)
	}
	return &Runtime{Config: cfg, DB: conn, Engine: e}, nil
}
