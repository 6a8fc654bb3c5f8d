// Package config loads revlog settings from defaults, an optional config
// file, REVLOG_* environment variables and explicit overrides, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "revlog"
	fileName  = ".revlog"
)

// Keys accepted in config files, environment variables and overrides.
const (
	RepoPath           = "repo.path"
	RepoBranch         = "repo.branch"
	HistoryPageSize    = "history.pageSize"
	HistoryMaxPageSize = "history.maxPageSize"
	DiffContext        = "diff.context"
	DiffTabWidth       = "diff.tabWidth"
	DiffMatcher        = "diff.matcher"
	CacheSize          = "cache.size"
	CacheHistoryDB     = "cache.historyDB"
	HighlightEnabled   = "highlight.enabled"
	HighlightStyle     = "highlight.style"
	WatchEnabled       = "watch.enabled"
	WatchDebounce      = "watch.debounce"
	ServerListen       = "server.listen"
	LogVerbose         = "log.verbose"
	LogFormat          = "log.format"
)

// Config is the root configuration structure.
type Config struct {
	Repo      RepoConfig      `mapstructure:"repo"`
	History   HistoryConfig   `mapstructure:"history"`
	Diff      DiffConfig      `mapstructure:"diff"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Highlight HighlightConfig `mapstructure:"highlight"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type RepoConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// Branch is a local branch name; empty follows HEAD.
	Branch string `mapstructure:"branch"`
}

type HistoryConfig struct {
	PageSize    int `mapstructure:"pageSize" validate:"min=1,ltefield=MaxPageSize"`
	MaxPageSize int `mapstructure:"maxPageSize" validate:"min=1"`
}

// DiffConfig controls chunk grouping. A negative Context renders whole
// files.
type DiffConfig struct {
	Context  int    `mapstructure:"context"`
	TabWidth int    `mapstructure:"tabWidth" validate:"min=1,max=16"`
	Matcher  string `mapstructure:"matcher" validate:"oneof=difflib myers"`
}

type CacheConfig struct {
	Size int `mapstructure:"size" validate:"min=1"`
	// HistoryDB is the sqlite file persisting parent lists; empty disables it.
	HistoryDB string `mapstructure:"historyDB"`
}

type HighlightConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Style   string `mapstructure:"style" validate:"required_if=Enabled true"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen" validate:"required,hostname_port"`
}

type LogConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	Format  string `mapstructure:"format" validate:"oneof=console json"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Repo: RepoConfig{Path: "."},
		History: HistoryConfig{
			PageSize:    20,
			MaxPageSize: 500,
		},
		Diff: DiffConfig{
			Context:  3,
			TabWidth: 8,
			Matcher:  "difflib",
		},
		Cache: CacheConfig{Size: 512},
		Highlight: HighlightConfig{
			Enabled: true,
			Style:   "github",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 350 * time.Millisecond,
		},
		Server: ServerConfig{Listen: "127.0.0.1:8080"},
		Log:    LogConfig{Format: "console"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault(RepoPath, d.Repo.Path)
	v.SetDefault(RepoBranch, d.Repo.Branch)
	v.SetDefault(HistoryPageSize, d.History.PageSize)
	v.SetDefault(HistoryMaxPageSize, d.History.MaxPageSize)
	v.SetDefault(DiffContext, d.Diff.Context)
	v.SetDefault(DiffTabWidth, d.Diff.TabWidth)
	v.SetDefault(DiffMatcher, d.Diff.Matcher)
	v.SetDefault(CacheSize, d.Cache.Size)
	v.SetDefault(CacheHistoryDB, d.Cache.HistoryDB)
	v.SetDefault(HighlightEnabled, d.Highlight.Enabled)
	v.SetDefault(HighlightStyle, d.Highlight.Style)
	v.SetDefault(WatchEnabled, d.Watch.Enabled)
	v.SetDefault(WatchDebounce, d.Watch.Debounce)
	v.SetDefault(ServerListen, d.Server.Listen)
	v.SetDefault(LogVerbose, d.Log.Verbose)
	v.SetDefault(LogFormat, d.Log.Format)
}

// Load reads the configuration. When file is empty .revlog.{json,yaml,toml}
// is looked up in the working directory and then in $HOME; a missing file
// is not an error. Overrides win over every other source.
func Load(file string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(fileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
