// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ortiz-cia/precios-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	MarketForm MarketFormConfig `yaml:"market_form" mapstructure:"market_form"`
	ProxyFeed  ProxyFeedConfig  `yaml:"proxy_feed" mapstructure:"proxy_feed"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	WritePolicy string           `yaml:"write_policy" mapstructure:"write_policy"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// MarketFormConfig configures the slaughter report-form source.
type MarketFormConfig struct {
	FormURL       string   `yaml:"form_url" mapstructure:"form_url"`
	ReportType    string   `yaml:"report_type" mapstructure:"report_type"`
	CookieName    string   `yaml:"cookie_name" mapstructure:"cookie_name"`
	TokenField    string   `yaml:"token_field" mapstructure:"token_field"`
	HiddenFields  []string `yaml:"hidden_fields" mapstructure:"hidden_fields"`
	FallbackToken string   `yaml:"fallback_token" mapstructure:"fallback_token"`
}

// ProxyFeedConfig configures the restocking price-proxy source.
type ProxyFeedConfig struct {
	ListingURL    string   `yaml:"listing_url" mapstructure:"listing_url"`
	HistoryURL    string   `yaml:"history_url" mapstructure:"history_url"`
	Referer       string   `yaml:"referer" mapstructure:"referer"`
	Categories    []string `yaml:"categories" mapstructure:"categories"`
	HistoryWindow string   `yaml:"history_window" mapstructure:"history_window"`
}

// HTTPConfig configures the outbound transport shared by both sources.
type HTTPConfig struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMillis  int    `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	PaceMinMillis  int    `yaml:"pace_min_millis" mapstructure:"pace_min_millis"`
	PaceMaxMillis  int    `yaml:"pace_max_millis" mapstructure:"pace_max_millis"`
}

// Timeout returns the request timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// Backoff returns the initial retry backoff as a duration.
func (c HTTPConfig) Backoff() time.Duration { return time.Duration(c.BackoffMillis) * time.Millisecond }

// PaceMin returns the minimum politeness interval as a duration.
func (c HTTPConfig) PaceMin() time.Duration { return time.Duration(c.PaceMinMillis) * time.Millisecond }

// PaceMax returns the maximum politeness interval as a duration.
func (c HTTPConfig) PaceMax() time.Duration { return time.Duration(c.PaceMaxMillis) * time.Millisecond }

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultCategories is the full restocking category list the history
// endpoint is queried for. Upstream additions are config overrides.
var defaultCategories = []string{
	"Terneros -160 Kg.", "Terneros 160-180 Kg.", "Terneros 180-200 Kg.",
	"Terneros 200-230 Kg.", "Terneros 230-260 Kg.", "Novillitos 260-300 Kg.",
	"Novillitos +300 Kg.", "Ternero Holando", "Terneras -150 Kg.",
	"Terneras 150-170 Kg.", "Terneras 170-190 Kg.", "Terneras 190-210 Kg.",
	"Vaquillonas 210-250 Kg.", "Vaquillonas 250-290 Kg.", "Vaquillonas +290 Kg.",
	"Ternera Holando", "Vaquillonas Para Entorar", "Vaquillonas Preñadas",
	"Vacas de Invernada", "Vacas Nuevas Preñadas", "Vacas 1/2 diente Preñadas",
	"Vacas CUT Preñadas", "Vacas Nuevas con cría", "Vacas 1/2 diente con cría",
	"Vacas CUT con cría",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRECIOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "precios.db")
	v.SetDefault("store.write_policy", string(store.PolicyIgnore))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_millis", 1000)
	v.SetDefault("http.pace_min_millis", 500)
	v.SetDefault("http.pace_max_millis", 1500)
	v.SetDefault("market_form.form_url", "https://www.mercadoagroganadero.com.ar/dll/hacienda6.dll/haciinfo000225")
	v.SetDefault("market_form.report_type", "1")
	v.SetDefault("market_form.cookie_name", "USUARIO")
	v.SetDefault("market_form.token_field", "USUARIO")
	v.SetDefault("market_form.hidden_fields", []string{"ID", "CP", "FLASH"})
	v.SetDefault("proxy_feed.listing_url", "https://www.decampoacampo.com/gh_funciones.php")
	v.SetDefault("proxy_feed.history_url", "https://www.decampoacampo.com/MODULOS/proxyPrecios/index.php")
	v.SetDefault("proxy_feed.referer", "https://www.decampoacampo.com/__dcac/invernada/invernada-precios")
	v.SetDefault("proxy_feed.categories", defaultCategories)
	v.SetDefault("proxy_feed.history_window", "3 years")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if !store.WritePolicy(cfg.Store.WritePolicy).Valid() {
		return nil, eris.Errorf("config: unknown write policy %q", cfg.Store.WritePolicy)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
