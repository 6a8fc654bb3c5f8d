package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/config"
	"github.com/thiagokokada/revlog/internal/diffview"
	"github.com/thiagokokada/revlog/internal/graph"
	"github.com/thiagokokada/revlog/internal/highlight"
	"github.com/thiagokokada/revlog/internal/historydb"
	"github.com/thiagokokada/revlog/internal/logging"
	"github.com/thiagokokada/revlog/internal/nav"
	"github.com/thiagokokada/revlog/internal/pagecache"
	"github.com/thiagokokada/revlog/internal/vcs"
	"github.com/thiagokokada/revlog/internal/vcs/gitstore"
)

// CommandContext holds the components shared by every command.
type CommandContext struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    *gitstore.Store
	Index    *graph.Index
	Nav      *nav.Navigator
	Registry *prometheus.Registry

	db *historydb.DB
}

// loadConfig merges the flags that were set explicitly over the
// configuration file and environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	overrides := map[string]any{}
	if c.IsSet("repo") {
		overrides[config.RepoPath] = c.String("repo")
	}
	if c.IsSet("branch") {
		overrides[config.RepoBranch] = c.String("branch")
	}
	if c.IsSet("verbose") {
		overrides[config.LogVerbose] = c.Bool("verbose")
	}
	if c.IsSet("log-format") {
		overrides[config.LogFormat] = c.String("log-format")
	}
	if c.IsSet("db") {
		overrides[config.CacheHistoryDB] = c.String("db")
	}
	return config.Load(c.String("config"), overrides)
}

func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logging.New(cfg.Log.Verbose, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	cc := &CommandContext{Config: cfg, Log: log}
	if err := cc.open(c.Context); err != nil {
		return nil, errors.Join(err, cc.Close())
	}
	return cc, nil
}

func (cc *CommandContext) open(ctx context.Context) error {
	cfg := cc.Config
	matcher, err := vcs.ParseMatcher(cfg.Diff.Matcher)
	if err != nil {
		return err
	}
	cc.Store, err = gitstore.Open(cfg.Repo.Path, cfg.Repo.Branch, gitstore.Options{
		Matcher: matcher,
		Logger:  cc.Log.Named("git"),
	})
	if err != nil {
		return err
	}
	store := vcs.WithRetry(cc.Store, cc.Log.Named("git"))

	var indexOpts []graph.Option
	indexOpts = append(indexOpts, graph.WithLogger(cc.Log.Named("index")))
	if cfg.Cache.HistoryDB != "" {
		cc.db, err = historydb.Open(ctx, cfg.Cache.HistoryDB, cc.Log.Named("historydb"))
		if err != nil {
			return err
		}
		indexOpts = append(indexOpts, graph.WithParentCache(cc.db))
	}
	cc.Index = graph.New(store, indexOpts...)

	cc.Registry = prometheus.NewRegistry()
	cc.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cache, err := pagecache.New(cfg.Cache.Size,
		pagecache.WithRegisterer(cc.Registry),
		pagecache.WithLogger(cc.Log.Named("cache")),
	)
	if err != nil {
		return err
	}

	var hl *highlight.Highlighter
	if cfg.Highlight.Enabled {
		hl = highlight.New(cfg.Highlight.Style)
	}
	cc.Nav = nav.New(store, cc.Index, cache,
		diffview.NewFormatter(cfg.Diff.Context, cfg.Diff.TabWidth),
		nav.Options{
			DefaultPageSize: cfg.History.PageSize,
			MaxPageSize:     cfg.History.MaxPageSize,
			Highlighter:     hl,
			Logger:          cc.Log.Named("nav"),
		},
	)
	return nil
}

func (cc *CommandContext) Close() error {
	var err error
	if cc.db != nil {
		err = cc.db.Close()
	}
	_ = cc.Log.Sync()
	return err
}
