package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/series"
	"github.com/rewired-gh/gamepulse/internal/trend"
)

// WatchItem is a watched game with its current live value, if any.
type WatchItem struct {
	models.WatchEntry
	Live      *float64 `json:"live,omitempty"`
	Formatted string   `json:"formatted,omitempty"`
	Compact   string   `json:"compact,omitempty"`
}

// Snapshot is the whole dashboard view at one instant.
type Snapshot struct {
	Panels    map[string]any    `json:"panels"`
	Watchlist []WatchItem       `json:"watchlist"`
	Live      models.LiveValues `json:"live"`
	Trend     trend.ChartState  `json:"trend"`
	At        time.Time         `json:"at"`
}

// TrendSelector is handed to every panel that can open the trend chart.
type TrendSelector func(id, name string, source models.Source)

func (d *Dashboard) Snapshot() Snapshot {
	panels := make(map[string]any, len(d.panels))
	for name, p := range d.panels {
		panels[name] = p.State()
	}
	return Snapshot{
		Panels:    panels,
		Watchlist: d.WatchItems(),
		Live:      d.agg.Values(),
		Trend:     d.chart.State(),
		At:        time.Now(),
	}
}

// Panel returns the snapshot of one panel.
func (d *Dashboard) Panel(name string) (any, error) {
	p, ok := d.panels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPanel, name)
	}
	return p.State(), nil
}

// Digest returns the weekly digest filtered to tag. An empty tag or
// models.TagAll returns it unfiltered.
func (d *Dashboard) Digest(tag string) models.WeeklyDigest {
	return models.FilterDigest(d.digest.Snapshot().Data, tag)
}

// Ticker returns the header ticker items.
func (d *Dashboard) Ticker() []models.TickerItem {
	return d.ticker.Snapshot().Data
}

// Watchlist returns the watched entries in insertion order.
func (d *Dashboard) Watchlist() []models.WatchEntry {
	return d.store.Entries()
}

// LiveValues returns the last committed live map.
func (d *Dashboard) LiveValues() models.LiveValues {
	return d.agg.Values()
}

func (d *Dashboard) WatchItems() []WatchItem {
	entries := d.store.Entries()
	values := d.agg.Values()
	items := make([]WatchItem, 0, len(entries))
	for _, e := range entries {
		item := WatchItem{WatchEntry: e}
		if v, ok := values.Get(e.Source, e.ID); ok {
			item.Live = &v
			item.Formatted = series.FormatCount(v)
			item.Compact = series.FormatValue(v)
		}
		items = append(items, item)
	}
	return items
}

// AddWatch adds entry to the watch-list. The in-memory list changes even
// when the returned error reports a persistence failure.
func (d *Dashboard) AddWatch(entry models.WatchEntry) error {
	err := d.store.Add(entry)
	if d.metrics != nil && entry.Validate() == nil {
		d.metrics.ObserveWatchWrite(err)
	}
	return err
}

func (d *Dashboard) RemoveWatch(id string, source models.Source) error {
	err := d.store.Remove(id, source)
	if d.metrics != nil {
		d.metrics.ObserveWatchWrite(err)
	}
	return err
}

// RecentSurges returns up to k recorded surges, newest first.
func (d *Dashboard) RecentSurges(ctx context.Context, k int) ([]models.Surge, error) {
	if d.journal == nil {
		return []models.Surge{}, nil
	}
	return d.journal.RecentSurges(ctx, k)
}

// TrendSelector returns the callback that opens the trend chart.
func (d *Dashboard) TrendSelector() TrendSelector {
	return d.router.Select
}

// SelectTrend validates t and makes it the chart target.
func (d *Dashboard) SelectTrend(t models.TrendTarget) error {
	if err := models.ValidateTarget(t); err != nil {
		return err
	}
	d.router.Select(t.ID, t.Name, t.Source)
	return nil
}

func (d *Dashboard) ClearTrend() {
	d.router.Clear()
}

func (d *Dashboard) Trend() trend.ChartState {
	return d.chart.State()
}

func (d *Dashboard) SetTrendDays(days int) error {
	return d.chart.SetDays(days)
}

func (d *Dashboard) SetTrendForecast(on bool) {
	d.chart.SetForecast(on)
}

func (d *Dashboard) TrendDays() []int {
	return d.chart.AllowedDays()
}

// WaitIdle blocks until in-flight live cycles and chart fetches finish.
func (d *Dashboard) WaitIdle() {
	d.agg.Wait()
	d.chart.Wait()
}
