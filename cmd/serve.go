package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/watch"
	"github.com/thiagokokada/revlog/internal/web"
)

const shutdownTimeout = 5 * time.Second

func ServeCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve history pages, diffs and annotations as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on (default: server.listen)",
			},
			&cli.BoolFlag{
				Name:  "nowatch",
				Usage: "Disable eager refresh when the branch tip moves",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := cc.Nav.Refresh(ctx); err != nil {
		return err
	}
	cc.Log.Info("History indexed",
		zap.String("repo", cc.Store.Path()),
		zap.String("tip", cc.Nav.Tip()),
		zap.Int("revisions", cc.Index.Len()),
	)

	if cc.Config.Watch.Enabled && !c.Bool("nowatch") {
		w := watch.New(cc.Store.Path(), cc.Config.Watch.Debounce, func() {
			if _, err := cc.Nav.Refresh(ctx); err != nil {
				cc.Log.Warn("Refresh after repository change failed", zap.Error(err))
			}
		}, cc.Log.Named("watch"))
		if err := w.Start(); err != nil {
			cc.Log.Warn("Watching repository failed, tip changes are picked up per request", zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	listen := cc.Config.Server.Listen
	if c.IsSet("listen") {
		listen = c.String("listen")
	}
	srv := web.New(cc.Nav, web.Options{Logger: cc.Log.Named("http"), Registry: cc.Registry})
	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(listen) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	cc.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
