package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/console"
)

func ShowCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a revision with its changes",
		ArgsUsage: "[revision]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stat",
				Usage: "List changed paths without diffs",
			},
		},
		Action: showAction,
	}
}

func showAction(c *cli.Context) error {
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	view, err := cc.Nav.Revision(c.Context, c.Args().First(), !c.Bool("stat"))
	if err != nil {
		return err
	}
	console.NewPrinter(c.App.Writer).Revision(view)
	return nil
}
