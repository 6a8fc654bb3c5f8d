package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/console"
)

func AnnotateCmd() *cli.Command {
	return &cli.Command{
		Name:      "annotate",
		Aliases:   []string{"blame"},
		Usage:     "Print a file with the revision that last changed each line",
		ArgsUsage: "<path> [revision]",
		Action:    annotateAction,
	}
}

func annotateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("annotate: missing file path")
	}
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	lines, err := cc.Nav.Annotate(c.Context, c.Args().Get(1), c.Args().First())
	if err != nil {
		return err
	}
	return console.NewPrinter(c.App.Writer).Annotate(lines)
}
