package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Task board providers.
const (
	ProviderClickUp = "clickup"
	ProviderNotion  = "notion"
	ProviderNone    = "none"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	TaskBoard  TaskBoardConfig  `yaml:"taskboard" mapstructure:"taskboard"`
	ClickUp    ClickUpConfig    `yaml:"clickup" mapstructure:"clickup"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the ledger database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TaskBoardConfig selects and tunes the task board sink.
type TaskBoardConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	ProductFieldID string `yaml:"product_field_id" mapstructure:"product_field_id"`
	// ProductLabels overrides the built-in product → label id table.
	ProductLabels map[string]string `yaml:"product_labels" mapstructure:"product_labels"`
	Timeouts      TimeoutsConfig    `yaml:"timeouts" mapstructure:"timeouts"`
}

// TimeoutsConfig bounds each task board call, in seconds.
type TimeoutsConfig struct {
	FieldsSecs int `yaml:"fields_secs" mapstructure:"fields_secs"`
	SearchSecs int `yaml:"search_secs" mapstructure:"search_secs"`
	GetSecs    int `yaml:"get_secs" mapstructure:"get_secs"`
	WriteSecs  int `yaml:"write_secs" mapstructure:"write_secs"`
	TagSecs    int `yaml:"tag_secs" mapstructure:"tag_secs"`
}

// ClickUpConfig holds ClickUp API credentials and the target list.
type ClickUpConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	ListID    string `yaml:"list_id" mapstructure:"list_id"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NotionConfig holds Notion API credentials and the lead database.
type NotionConfig struct {
	Token         string `yaml:"token" mapstructure:"token"`
	DatabaseID    string `yaml:"database_id" mapstructure:"database_id"`
	TagsProperty  string `yaml:"tags_property" mapstructure:"tags_property"`
	TitleProperty string `yaml:"title_property" mapstructure:"title_property"`
}

// PipelineConfig configures normalization and the ledger sink.
type PipelineConfig struct {
	DefaultProject string `yaml:"default_project" mapstructure:"default_project"`
	CountryCode    string `yaml:"country_code" mapstructure:"country_code"`
	FieldMapFile   string `yaml:"field_map_file" mapstructure:"field_map_file"`
	MaxRawBytes    int    `yaml:"max_raw_bytes" mapstructure:"max_raw_bytes"`
}

// ImportConfig configures bulk imports.
type ImportConfig struct {
	Project string `yaml:"project" mapstructure:"project"`
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures the background ledger health check.
type MonitoringConfig struct {
	CheckIntervalSecs int `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// legacyClickUpTokenVars are read, in order, when clickup.token is unset.
var legacyClickUpTokenVars = []string{"CLICKUP_API_TOKEN", "CLICKUP_TOKEN"}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("taskboard.provider", ProviderClickUp)
	v.SetDefault("taskboard.product_field_id", "b01ec9fe-187c-4e49-8d0e-5f40d24ed3f3")
	v.SetDefault("taskboard.timeouts.fields_secs", 15)
	v.SetDefault("taskboard.timeouts.search_secs", 10)
	v.SetDefault("taskboard.timeouts.get_secs", 10)
	v.SetDefault("taskboard.timeouts.write_secs", 15)
	v.SetDefault("taskboard.timeouts.tag_secs", 5)
	v.SetDefault("clickup.token", "")
	v.SetDefault("clickup.list_id", "901305222206")
	v.SetDefault("clickup.base_url", "https://api.clickup.com/api/v2")
	v.SetDefault("clickup.rate_limit", 100)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.tags_property", "Tags")
	v.SetDefault("notion.title_property", "Name")
	v.SetDefault("pipeline.default_project", "default")
	v.SetDefault("pipeline.country_code", "55")
	v.SetDefault("pipeline.field_map_file", "")
	v.SetDefault("pipeline.max_raw_bytes", 1_000_000)
	v.SetDefault("import.project", "escala-26")
	v.SetDefault("import.sheet", "")
	v.SetDefault("server.port", 3010)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.check_interval_secs", 60)

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

	if cfg.ClickUp.Token == "" {
		for _, name := range legacyClickUpTokenVars {
			if tok := os.Getenv(name); tok != "" {
				cfg.ClickUp.Token = tok
				break
			}
		}
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Modes: "serve", "import",
// "migrate", "leads", "fields".
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "serve", "import", "migrate", "leads":
		c.validateStore(require)
		if mode == "serve" {
			require(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535")
		}
		if mode == "serve" || mode == "import" {
			c.validateTaskBoard(require, false)
		}
	case "fields":
		c.validateTaskBoard(require, true)
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore(require func(bool, string)) {
	switch c.Store.Driver {
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	case "sqlite":
		require(c.Store.DatabaseURL != "", "store.database_url is required (sqlite file path)")
	default:
		require(false, "store.driver must be postgres or sqlite")
	}
}

// validateTaskBoard checks provider settings. A ClickUp provider without a
// token is allowed unless strict, because the sink is then disabled rather
// than failing every event.
func (c *Config) validateTaskBoard(require func(bool, string), strict bool) {
	switch c.TaskBoard.Provider {
	case ProviderClickUp:
		if strict {
			require(c.ClickUp.Token != "", "clickup.token is required")
		}
		require(c.ClickUp.ListID != "", "clickup.list_id is required")
	case ProviderNotion:
		require(c.Notion.Token != "", "notion.token is required")
		require(c.Notion.DatabaseID != "", "notion.database_id is required")
	case ProviderNone:
		require(!strict, "taskboard.provider is none")
	default:
		require(false, "taskboard.provider must be clickup, notion or none")
	}
}

// TaskBoardEnabled reports whether events should be written to a task board.
func (c *Config) TaskBoardEnabled() bool {
	switch c.TaskBoard.Provider {
	case ProviderClickUp:
		return c.ClickUp.Token != ""
	case ProviderNotion:
		return c.Notion.Token != "" && c.Notion.DatabaseID != ""
	default:
		return false
	}
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
