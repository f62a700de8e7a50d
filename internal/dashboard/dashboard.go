// Package dashboard owns every refresh session of the engine and produces
// snapshots of the whole view for renderers.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/gamepulse/internal/aggregator"
	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/monitor"
	"github.com/rewired-gh/gamepulse/internal/scheduler"
	"github.com/rewired-gh/gamepulse/internal/series"
	"github.com/rewired-gh/gamepulse/internal/trend"
	"github.com/rewired-gh/gamepulse/internal/watchlist"
)

const (
	PanelSteam       = "steam"
	PanelTwitch      = "twitch"
	PanelDiscussions = "discussions"
	PanelNews        = "news"
	PanelMobile      = "mobile"
	PanelDigest      = "weekly_digest"
	PanelTrends      = "google_trends"
	PanelTicker      = "ticker"
)

// PanelNames lists the panels in display order.
var PanelNames = []string{
	PanelTicker, PanelSteam, PanelTwitch, PanelDiscussions,
	PanelNews, PanelMobile, PanelDigest, PanelTrends,
}

var ErrUnknownPanel = errors.New("unknown panel")

// Backend is the remote data source of every panel.
type Backend interface {
	SteamTopGames(ctx context.Context) ([]models.SteamGame, error)
	TwitchTopGames(ctx context.Context) ([]models.TwitchGame, error)
	Discussions(ctx context.Context) (models.Discussions, error)
	News(ctx context.Context) (models.News, error)
	Mobile(ctx context.Context) (models.Mobile, error)
	WeeklyDigest(ctx context.Context) (models.WeeklyDigest, error)
	GoogleTrends(ctx context.Context) (models.GoogleTrends, error)
	trend.HistorySource
	aggregator.Lookup
}

// Journal records committed live values and detected surges locally.
type Journal interface {
	trend.Journal
	AppendSamples(ctx context.Context, values models.LiveValues, names map[models.LiveKey]string, at time.Time) error
	RecentSurges(ctx context.Context, k int) ([]models.Surge, error)
	MarkNotified(ctx context.Context, id string) error
}

type Notifier interface {
	SendSurges(ctx context.Context, surges []models.Surge) error
}

type Metrics interface {
	scheduler.Observer
	aggregator.Observer
	SetWatched(n int)
	ObserveWatchWrite(err error)
	ObserveSurge(source, direction string)
}

// Deps are the collaborators of a Dashboard. Only API and Watchlist are
// required.
type Deps struct {
	API       Backend
	Watchlist *watchlist.Store
	Journal   Journal
	Monitor   *monitor.Monitor
	Notifier  Notifier
	Metrics   Metrics
}

type Config struct {
	// Schedules maps panel names to their refresh schedule. A missing or
	// nil schedule fetches once on start.
	Schedules    map[string]cron.Schedule
	DiscardStale bool
	LiveTimeout  time.Duration
	// LiveInterval re-runs the live cycle periodically. Zero refreshes only
	// on watch-list changes.
	LiveInterval time.Duration
	LiveWorkers  int
	TickerSize   int
	Trend        trend.ChartConfig
}

type Dashboard struct {
	api      Backend
	store    *watchlist.Store
	journal  Journal
	monitor  *monitor.Monitor
	notifier Notifier
	metrics  Metrics
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc

	steam       *scheduler.Panel[[]models.SteamGame]
	twitch      *scheduler.Panel[[]models.TwitchGame]
	discussions *scheduler.Panel[models.Discussions]
	news        *scheduler.Panel[models.News]
	mobile      *scheduler.Panel[models.Mobile]
	digest      *scheduler.Panel[models.WeeklyDigest]
	trends      *scheduler.Panel[models.GoogleTrends]
	ticker      *scheduler.Panel[[]models.TickerItem]
	panels      map[string]scheduler.Handle
	starters    []func(ctx context.Context)

	agg    *aggregator.Aggregator
	live   *scheduler.Session
	router *trend.Router
	chart  *trend.Chart

	changed chan struct{}
	detach  []func()
	wg      sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// New wires a Dashboard. Nothing is fetched until Start.
func New(deps Deps, cfg Config) *Dashboard {
	if cfg.TickerSize <= 0 {
		cfg.TickerSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		api:      deps.API,
		store:    deps.Watchlist,
		journal:  deps.Journal,
		monitor:  deps.Monitor,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		panels:   make(map[string]scheduler.Handle),
		changed:  make(chan struct{}, 1),
		router:   trend.NewRouter(),
	}

	pc := scheduler.PanelConfig{
		DiscardStale: cfg.DiscardStale,
		OnChange:     func(string) { d.notify() },
	}
	if d.metrics != nil {
		pc.Observer = d.metrics
	}

	d.steam = addPanel(d, PanelSteam, []models.SteamGame{}, pc, d.api.SteamTopGames)
	d.twitch = addPanel(d, PanelTwitch, []models.TwitchGame{}, pc, d.api.TwitchTopGames)
	d.discussions = addPanel(d, PanelDiscussions, normalized(&models.Discussions{}), pc, d.api.Discussions)
	d.news = addPanel(d, PanelNews, normalized(&models.News{}), pc, d.api.News)
	d.mobile = addPanel(d, PanelMobile, normalized(&models.Mobile{}), pc, d.api.Mobile)
	d.digest = addPanel(d, PanelDigest, normalized(&models.WeeklyDigest{}), pc, d.api.WeeklyDigest)
	d.trends = addPanel(d, PanelTrends, normalized(&models.GoogleTrends{}), pc, d.api.GoogleTrends)
	d.ticker = addPanel(d, PanelTicker, []models.TickerItem{}, pc, d.fetchTicker)

	aggOpts := []aggregator.Option{aggregator.WithDiscardStale(cfg.DiscardStale)}
	if cfg.LiveTimeout > 0 {
		aggOpts = append(aggOpts, aggregator.WithTimeout(cfg.LiveTimeout))
	}
	if cfg.LiveWorkers > 0 {
		aggOpts = append(aggOpts, aggregator.WithMaxWorkers(cfg.LiveWorkers))
	}
	if d.metrics != nil {
		aggOpts = append(aggOpts, aggregator.WithObserver(d.metrics))
	}
	d.agg = aggregator.New(d.api, aggOpts...)
	d.agg.OnCommit(d.onLive)

	chartCfg := cfg.Trend
	if d.journal != nil {
		chartCfg.Journal = d.journal
	}
	chartCfg.OnChange = d.notify
	d.chart = trend.NewChart(ctx, d.router, d.api, chartCfg)

	return d
}

type normalizer interface{ Normalize() }

func normalized[T any, P interface {
	*T
	normalizer
}](v P) T {
	v.Normalize()
	return *v
}

func addPanel[T any](d *Dashboard, name string, initial T, pc scheduler.PanelConfig, fetch func(context.Context) (T, error)) *scheduler.Panel[T] {
	p := scheduler.NewPanel(name, initial, pc)
	d.panels[name] = p
	d.starters = append(d.starters, func(ctx context.Context) {
		p.Run(ctx, fetch, d.cfg.Schedules[name])
	})
	return p
}

func (d *Dashboard) fetchTicker(ctx context.Context) ([]models.TickerItem, error) {
	games, err := d.api.SteamTopGames(ctx)
	if err != nil {
		return nil, err
	}
	if len(games) > d.cfg.TickerSize {
		games = games[:d.cfg.TickerSize]
	}
	items := make([]models.TickerItem, 0, len(games))
	for _, g := range games {
		items = append(items, models.TickerItem{
			Name:  g.Name,
			Value: g.CurrentPlayers,
			Text:  series.FormatCount(g.CurrentPlayers),
		})
	}
	return items, nil
}

// Start mounts every panel and attaches the live aggregator to the
// watch-list. Sessions stop when ctx is done or on Close.
func (d *Dashboard) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go func() {
			select {
			case <-ctx.Done():
				d.cancel()
			case <-d.ctx.Done():
			}
		}()

		for _, start := range d.starters {
			start(d.ctx)
		}

		if d.metrics != nil {
			d.metrics.SetWatched(d.store.Len())
			d.detach = append(d.detach, d.store.Subscribe(func(entries []models.WatchEntry) {
				d.metrics.SetWatched(len(entries))
			}))
		}
		d.detach = append(d.detach, d.agg.Attach(d.ctx, d.store))

		if d.cfg.LiveInterval > 0 {
			d.live = scheduler.NewSession("live")
			d.live.Start(d.ctx, d.refreshLive, scheduler.Interval(d.cfg.LiveInterval))
		}
		logger.Info("Dashboard started with %d panels, %d watched games", len(d.panels), d.store.Len())
	})
}

func (d *Dashboard) refreshLive(ctx context.Context) {
	if entries := d.store.Entries(); len(entries) > 0 {
		d.agg.Refresh(ctx, entries)
	}
}

func (d *Dashboard) names() map[models.LiveKey]string {
	entries := d.store.Entries()
	names := make(map[models.LiveKey]string, len(entries))
	for _, e := range entries {
		names[e.Key()] = e.Name
	}
	return names
}

func (d *Dashboard) onLive(values models.LiveValues) {
	defer d.notify()
	if len(values) == 0 {
		return
	}
	names := d.names()
	if d.journal != nil {
		if err := d.journal.AppendSamples(d.ctx, values, names, time.Now()); err != nil {
			logger.Warn("Failed to journal live values: %v", err)
		}
	}
	if d.monitor != nil {
		d.handleSurges(d.monitor.Process(d.ctx, values, names))
	}
}

func (d *Dashboard) handleSurges(surges []models.Surge) {
	for _, s := range surges {
		logger.Info("Surge detected: %s (%s) %.0f vs mean %.1f, z=%.2f", s.Name, s.Key, s.Value, s.Mean, s.Z)
		if d.metrics != nil {
			d.metrics.ObserveSurge(string(s.Key.Source), s.Direction())
		}
	}
	if d.notifier == nil || d.monitor == nil {
		return
	}
	pending := d.monitor.FilterRecentlySent(surges)
	if len(pending) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.notifier.SendSurges(d.ctx, pending); err != nil {
			logger.Error("Failed to send surge notification: %v", err)
			return
		}
		d.monitor.RecordNotified(pending)
		if d.journal == nil {
			return
		}
		for _, s := range pending {
			if err := d.journal.MarkNotified(d.ctx, s.ID); err != nil {
				logger.Debug("Failed to mark surge %s notified: %v", s.ID, err)
			}
		}
	}()
}

func (d *Dashboard) notify() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Changes delivers a signal after any panel, watch-list, live or chart
// change. Bursts coalesce into one pending signal, so there must be a
// single reader.
func (d *Dashboard) Changes() <-chan struct{} {
	return d.changed
}

// Close stops every session and waits for background work.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		for _, p := range d.panels {
			p.Close()
		}
		if d.live != nil {
			d.live.Stop()
		}
		for _, fn := range d.detach {
			fn()
		}
		d.cancel()
		d.agg.Wait()
		d.chart.Close()
		d.wg.Wait()
		if d.monitor != nil {
			d.monitor.Shutdown()
		}
		logger.Info("Dashboard stopped")
	})
}

// RefreshPanel runs one extra fetch of a panel and blocks until it settles.
func (d *Dashboard) RefreshPanel(ctx context.Context, name string) error {
	p, ok := d.panels[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPanel, name)
	}
	p.Refresh(ctx)
	return nil
}
