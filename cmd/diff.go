package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/console"
)

func DiffCmd() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Print the changes between two revisions",
		ArgsUsage: "<base> [revision]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stat",
				Usage: "List changed paths without diffs",
			},
		},
		Action: diffAction,
	}
}

func diffAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("diff: missing base revision")
	}
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	view, err := cc.Nav.Compare(c.Context, c.Args().First(), c.Args().Get(1), !c.Bool("stat"))
	if err != nil {
		return err
	}
	console.NewPrinter(c.App.Writer).Comparison(view)
	return nil
}
