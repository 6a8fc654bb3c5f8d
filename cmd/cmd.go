package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/buildinfo"
)

func Run() error {
	return App().Run(os.Args)
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    buildinfo.Name,
		Usage:   "Browse the history of a git branch",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default: .revlog.{json,yaml,toml} in . or $HOME)",
			},
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Path to the git repository",
			},
			&cli.StringFlag{
				Name:    "branch",
				Aliases: []string{"b"},
				Usage:   "Branch to browse (default: HEAD)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (console, json)",
			},
		},
		Commands: []*cli.Command{
			ServeCmd(),
			LogCmd(),
			ShowCmd(),
			AnnotateCmd(),
			FilesCmd(),
			DiffCmd(),
			SearchCmd(),
			ImportCmd(),
		},
	}
}
