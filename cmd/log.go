package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/console"
)

func LogCmd() *cli.Command {
	return &cli.Command{
		Name:      "log",
		Usage:     "Print one page of first-parent history",
		ArgsUsage: "[revision]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"n"},
				Usage:   "Number of revisions per page (default: history.pageSize)",
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Only list revisions touching this path or glob",
			},
		},
		Action: logAction,
	}
}

func logAction(c *cli.Context) error {
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	page, err := cc.Nav.Navigate(c.Context, c.Args().First(), c.Int("size"), c.String("path"))
	if err != nil {
		return err
	}
	return console.NewPrinter(c.App.Writer).Page(page)
}
