package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/thiagokokada/revlog/internal/console"
)

func SearchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find mainline revisions by message or author",
		ArgsUsage: "<words...>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"n"},
				Usage:   "Maximum number of matches (default: history.pageSize)",
			},
		},
		Action: searchAction,
	}
}

func searchAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("search: missing query")
	}
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()

	res, err := cc.Nav.Search(c.Context, strings.Join(c.Args().Slice(), " "), c.Int("size"))
	if err != nil {
		return err
	}
	return console.NewPrinter(c.App.Writer).Search(res)
}
