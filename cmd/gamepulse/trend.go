package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/gamepulse/internal/gameinfo"
	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/series"
)

var (
	trendDays     int
	trendForecast bool
)

var trendCmd = &cobra.Command{
	Use:   "trend <source> <id>",
	Short: "Print the history of a game, optionally with its forecast",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrend,
}

func init() {
	trendCmd.Flags().IntVarP(&trendDays, "days", "d", 0, "history window in days (defaults to trend.default_days)")
	trendCmd.Flags().BoolVarP(&trendForecast, "forecast", "f", false, "append the forecast to the history")
}

func runTrend(cmd *cobra.Command, args []string) error {
	source := models.Source(args[0])
	target := models.TrendTarget{ID: args[1], Name: args[1], Source: source}
	if err := models.ValidateTarget(target); err != nil {
		return err
	}

	days := trendDays
	if days == 0 {
		days = cfg.Trend.DefaultDays
	}
	days = models.ClampDays(days)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.API.Timeout)
	defer cancel()

	api := gameinfo.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		gameinfo.WithRetry(cfg.API.MaxRetries, cfg.API.RetryDelayBase))

	var (
		history  []models.HistoryPoint
		forecast []models.ForecastPoint
	)
	resp, err := api.History(ctx, source, target.ID, days, trendForecast)
	if err != nil {
		logger.Warn("History request failed, falling back to the local journal: %v", err)
		history, err = journalHistory(ctx, source, target.ID, days)
		if err != nil {
			return err
		}
	} else {
		history, forecast = resp.Data, resp.Forecast
	}

	composed := series.WithLabels(series.Compose(history, forecast, trendForecast), time.Local)
	if !series.Renderable(composed) {
		fmt.Println(color.YellowString("Not enough data to chart %s %s over %d days", source.Label(), target.ID, days))
		return nil
	}
	return printSeries(composed, source)
}

func journalHistory(ctx context.Context, source models.Source, id string, days int) ([]models.HistoryPoint, error) {
	st, err := openStorage()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.History(ctx, source, id, days)
}

func printSeries(s models.ComposedSeries, source models.Source) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Time", "History", "Forecast"})
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.Global = tw.AlignRight
	})

	forecastColor := color.New(color.FgYellow).SprintFunc()
	bridgeColor := color.New(color.FgCyan).SprintFunc()

	var data [][]string
	for _, p := range s {
		hist, fc := "", ""
		if p.HistoryValue != nil {
			hist = series.FormatValue(*p.HistoryValue)
		}
		if p.ForecastValue != nil {
			fc = forecastColor(series.FormatValue(*p.ForecastValue))
		}
		label := p.Label
		if p.IsBridge() {
			label = bridgeColor(label)
		}
		data = append(data, []string{label, hist, fc})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("%d points, values in %s\n", len(s), source.Unit())
	return nil
}
