package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/config"
)

func ImportCmd() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Index the branch into the history database for fast startup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "History database file (default: cache.historyDB)",
			},
		},
		Action: importAction,
	}
}

func importAction(c *cli.Context) error {
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()
	if cc.db == nil {
		return fmt.Errorf("import: no history database configured (set %s or --db)", config.CacheHistoryDB)
	}

	start := time.Now()
	if _, err := cc.Index.Refresh(c.Context); err != nil {
		return err
	}
	count, err := cc.db.RevisionCount(c.Context)
	if err != nil {
		return err
	}
	cc.Log.Info("History imported",
		zap.String("tip", cc.Index.Tip()),
		zap.Int("revisions", count),
		zap.Duration("elapsed", time.Since(start)),
	)
	fmt.Fprintf(c.App.Writer, "%d revisions stored, tip %s\n", count, cc.Index.Tip())
	return nil
}
