package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/gamepulse/internal/gameinfo"
	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/series"
	"github.com/rewired-gh/gamepulse/internal/storage"
	"github.com/rewired-gh/gamepulse/internal/watchlist"
)

var watchLive bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Inspect and edit the persisted watch-list",
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the watch-list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withWatchlist(func(store *watchlist.Store) error {
			return printWatchlist(cmd.Context(), store.Entries())
		})
	},
}

var watchAddCmd = &cobra.Command{
	Use:   "add <source> <id> <name>",
	Short: "Add a game to the watch-list",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry := models.WatchEntry{Source: models.Source(args[0]), ID: args[1], Name: args[2]}
		if err := entry.Validate(); err != nil {
			return err
		}
		return withWatchlist(func(store *watchlist.Store) error {
			if err := store.Add(entry); err != nil {
				return fmt.Errorf("failed to persist watch-list: %w", err)
			}
			fmt.Println(color.GreenString("Watching %s on %s", entry.Name, entry.Source.Label()))
			return nil
		})
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:     "remove <source> <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a game from the watch-list",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := models.Source(args[0])
		if !source.Valid() {
			return fmt.Errorf("%w: %q", models.ErrInvalidSource, args[0])
		}
		return withWatchlist(func(store *watchlist.Store) error {
			if !store.Contains(args[1], source) {
				fmt.Println(color.YellowString("%s %s is not watched", source.Label(), args[1]))
				return nil
			}
			if err := store.Remove(args[1], source); err != nil {
				return fmt.Errorf("failed to persist watch-list: %w", err)
			}
			fmt.Println(color.GreenString("Removed %s %s", source.Label(), args[1]))
			return nil
		})
	},
}

func init() {
	watchListCmd.Flags().BoolVar(&watchLive, "live", false, "fetch the current value of every entry")
	watchCmd.AddCommand(watchListCmd, watchAddCmd, watchRemoveCmd)
}

// withWatchlist opens the configured backend around fn.
func withWatchlist(fn func(store *watchlist.Store) error) error {
	var st *storage.Storage
	if cfg.Watchlist.Backend == "sqlite" {
		var err error
		if st, err = openStorage(); err != nil {
			return err
		}
		defer st.Close()
	}
	store, closer, err := openWatchlist(st)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(store)
}

func printWatchlist(ctx context.Context, entries []models.WatchEntry) error {
	if len(entries) == 0 {
		fmt.Println(color.YellowString("Watch-list is empty"))
		return nil
	}

	var live map[models.LiveKey]float64
	if watchLive {
		live = fetchLive(ctx, entries)
	}

	table := tablewriter.NewWriter(os.Stdout)
	headers := []string{"#", "Source", "ID", "Name", "Added"}
	if watchLive {
		headers = append(headers, "Live")
	}
	table.Header(headers)
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for i, e := range entries {
		row := []string{
			strconv.Itoa(i + 1),
			e.Source.Label(),
			e.ID,
			e.Name,
			humanize.Time(e.Added()),
		}
		if watchLive {
			if v, ok := live[e.Key()]; ok {
				row = append(row, fmt.Sprintf("%s %s", series.FormatCount(v), e.Source.Unit()))
			} else {
				row = append(row, color.HiBlackString("n/a"))
			}
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// fetchLive queries each supported entry sequentially. Failed entries are
// left out.
func fetchLive(ctx context.Context, entries []models.WatchEntry) map[models.LiveKey]float64 {
	if ctx == nil {
		ctx = context.Background()
	}
	api := gameinfo.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		gameinfo.WithRetry(cfg.API.MaxRetries, cfg.API.RetryDelayBase))

	out := make(map[models.LiveKey]float64, len(entries))
	for _, e := range entries {
		if !api.Supports(e.Source) {
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, cfg.Aggregator.Timeout)
		v, err := api.LiveValue(reqCtx, e)
		cancel()
		if err != nil {
			logger.Warn("Failed to fetch live value for %s %s: %v", e.Source, e.ID, err)
			continue
		}
		out[e.Key()] = v
	}
	return out
}

