package main

import (
	"github.com/urfave/cli/v3"

	"cineverse/discovery/internal/domain"
)

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog",
		ArgsUsage: "<query>",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Results page",
				Value: 1,
			},
		}, outputFlags()...),
		Action: r.Search,
	}
}

func suggestCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "suggest",
		Usage:     "Show autocomplete suggestions for a query",
		ArgsUsage: "<query>",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of suggestions",
				Value: 8,
			},
		}, outputFlags()...),
		Action: r.Suggest,
	}
}

func feedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Fetch a feed preset and print the filtered view",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "preset",
				Aliases: []string{"p"},
				Usage:   "Feed preset name",
				Value:   "recommendations",
			},
			&cli.StringFlag{
				Name:    "genre",
				Aliases: []string{"g"},
				Usage:   "Genre filter key",
				Value:   domain.GenreAll,
			},
			&cli.StringFlag{
				Name:    "sort",
				Aliases: []string{"s"},
				Usage:   "Sort key: popularity, rating or year",
				Value:   string(domain.SortByPopularity),
			},
		}, outputFlags()...),
		Action: r.Feed,
	}
}

func detailsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "details",
		Usage:     "Show a movie with reviews and similar titles",
		ArgsUsage: "<id>",
		Flags:     outputFlags(),
		Action:    r.Details,
	}
}

func watchlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watchlist",
		Aliases: []string{"wl"},
		Usage:   "Manage the signed-in user's watchlist",
		Commands: []*cli.Command{
			{
				Name:   "ls",
				Usage:  "List watchlist entries",
				Flags:  outputFlags(),
				Action: r.WatchlistList,
			},
			{
				Name:      "add",
				Usage:     "Add a movie by id",
				ArgsUsage: "<id>",
				Action:    r.WatchlistAdd,
			},
			{
				Name:      "rm",
				Usage:     "Remove a movie by id",
				ArgsUsage: "<id>",
				Action:    r.WatchlistRemove,
			},
		},
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the interactive terminal UI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "preset",
				Usage: "Feed preset shown in the feed view",
				Value: "recommendations",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the UI owns the terminal",
			},
		},
		Action: r.TUI,
	}
}
