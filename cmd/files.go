package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/console"
)

func FilesCmd() *cli.Command {
	return &cli.Command{
		Name:      "files",
		Aliases:   []string{"ls"},
		Usage:     "List a directory with the revision that last changed each entry",
		ArgsUsage: "[dir] [revision]",
		Action:    filesAction,
	}
}

func filesAction(c *cli.Context) error {
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	listing, err := cc.Nav.Files(c.Context, c.Args().Get(1), c.Args().First())
	if err != nil {
		return err
	}
	return console.NewPrinter(c.App.Writer).Files(listing)
}
