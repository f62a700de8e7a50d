package trend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/series"
)

// ErrDaysNotAllowed is returned by SetDays for a window outside the
// configured choices.
var ErrDaysNotAllowed = errors.New("day range not allowed")

// HistorySource fetches the recorded and forecast series of a target.
type HistorySource interface {
	History(ctx context.Context, source models.Source, id string, days int, forecast bool) (models.HistoryResponse, error)
}

// Journal is a local fallback for history.
type Journal interface {
	History(ctx context.Context, source models.Source, id string, days int) ([]models.HistoryPoint, error)
}

// ChartConfig configures a Chart.
type ChartConfig struct {
	DefaultDays int
	AllowedDays []int
	Forecast    bool
	Timeout     time.Duration
	Location    *time.Location
	Journal     Journal
	OnChange    func()
}

// ChartState is a snapshot of the chart view.
type ChartState struct {
	Open       bool                  `json:"open"`
	Target     *models.TrendTarget   `json:"target,omitempty"`
	Days       int                   `json:"days"`
	Forecast   bool                  `json:"forecast"`
	Loading    bool                  `json:"loading"`
	Series     models.ComposedSeries `json:"series"`
	Renderable bool                  `json:"renderable"`
	Empty      bool                  `json:"empty"`
	Fallback   bool                  `json:"fallback"`
}

// Chart is the single consumer of a Router. Every target change discards
// the current view and re-fetches from scratch.
type Chart struct {
	api HistorySource
	cfg ChartConfig

	mu     sync.Mutex
	parent context.Context
	target models.TrendTarget
	open   bool
	days   int
	fc     bool
	state  ChartState
	gen    uint64
	cancel context.CancelFunc

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewChart creates a Chart bound to router. Fetches run under ctx.
func NewChart(ctx context.Context, router *Router, api HistorySource, cfg ChartConfig) *Chart {
	if len(cfg.AllowedDays) == 0 {
		cfg.AllowedDays = []int{7, 14, 30}
	}
	if cfg.DefaultDays == 0 {
		cfg.DefaultDays = cfg.AllowedDays[0]
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Chart{
		api:    api,
		cfg:    cfg,
		parent: ctx,
		days:   cfg.DefaultDays,
		fc:     cfg.Forecast,
	}
	c.state = ChartState{Days: c.days, Forecast: c.fc, Series: models.ComposedSeries{}}

	c.unsubscribe = router.Subscribe(c.onTarget)
	if t, ok := router.Current(); ok {
		c.onTarget(t, true)
	}
	return c
}

func (c *Chart) onTarget(t models.TrendTarget, ok bool) {
	c.mu.Lock()
	c.target, c.open = t, ok
	c.reloadLocked()
	c.mu.Unlock()
	c.changed()
}

// SetDays changes the history window and re-fetches.
func (c *Chart) SetDays(days int) error {
	if !slices.Contains(c.cfg.AllowedDays, days) {
		return fmt.Errorf("%w: %d", ErrDaysNotAllowed, days)
	}
	c.mu.Lock()
	c.days = days
	c.reloadLocked()
	c.mu.Unlock()
	c.changed()
	return nil
}

// SetForecast toggles the forecast continuation and re-fetches.
func (c *Chart) SetForecast(on bool) {
	c.mu.Lock()
	c.fc = on
	c.reloadLocked()
	c.mu.Unlock()
	c.changed()
}

// reloadLocked cancels any in-flight fetch, resets the view and starts a
// fetch for the current target.
func (c *Chart) reloadLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++

	c.state = ChartState{
		Open:     c.open,
		Days:     c.days,
		Forecast: c.fc,
		Series:   models.ComposedSeries{},
	}
	if !c.open {
		return
	}
	t := c.target
	c.state.Target = &t
	c.state.Loading = true

	ctx, cancel := context.WithTimeout(c.parent, c.cfg.Timeout)
	c.cancel = cancel
	gen, days, fc := c.gen, c.days, c.fc

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.load(ctx, gen, t, days, fc)
	}()
}

func (c *Chart) load(ctx context.Context, gen uint64, t models.TrendTarget, days int, fc bool) {
	var history []models.HistoryPoint
	var forecast []models.ForecastPoint
	fallback := false

	resp, err := c.api.History(ctx, t.Source, t.ID, days, fc)
	if err != nil {
		if !c.current(gen) {
			return
		}
		logger.Warn("Failed to load history for %s: %v", t.Key(), err)
	} else {
		history, forecast = resp.Data, resp.Forecast
	}

	if len(history) < series.MinRenderablePoints && c.cfg.Journal != nil {
		local, jerr := c.cfg.Journal.History(ctx, t.Source, t.ID, days)
		if jerr != nil {
			logger.Debug("Local journal lookup for %s failed: %v", t.Key(), jerr)
		} else if len(local) >= series.MinRenderablePoints {
			history, forecast, fallback = local, nil, true
		}
	}

	composed := series.WithLabels(series.Compose(history, forecast, fc), c.cfg.Location)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state.Loading = false
	c.state.Series = composed
	c.state.Renderable = series.Renderable(composed)
	c.state.Empty = !c.state.Renderable
	c.state.Fallback = fallback
	c.mu.Unlock()
	c.changed()
}

func (c *Chart) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Chart) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}

// State returns a snapshot of the chart.
func (c *Chart) State() ChartState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Series = append(models.ComposedSeries{}, c.state.Series...)
	return st
}

// AllowedDays returns the selectable history windows.
func (c *Chart) AllowedDays() []int {
	return append([]int(nil), c.cfg.AllowedDays...)
}

// Wait blocks until in-flight fetches finish.
func (c *Chart) Wait() {
	c.wg.Wait()
}

// Close detaches from the router and cancels any in-flight fetch.
func (c *Chart) Close() {
	c.unsubscribe()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.mu.Unlock()
	c.wg.Wait()
}
