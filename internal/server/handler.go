package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rewired-gh/gamepulse/internal/dashboard"
	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/trend"
)

// Engine is the dashboard surface served over HTTP.
type Engine interface {
	Snapshot() dashboard.Snapshot
	Panel(name string) (any, error)
	RefreshPanel(ctx context.Context, name string) error
	Digest(tag string) models.WeeklyDigest
	Ticker() []models.TickerItem
	WatchItems() []dashboard.WatchItem
	AddWatch(entry models.WatchEntry) error
	RemoveWatch(id string, source models.Source) error
	SelectTrend(t models.TrendTarget) error
	ClearTrend()
	Trend() trend.ChartState
	SetTrendDays(days int) error
	SetTrendForecast(on bool)
	TrendDays() []int
	RecentSurges(ctx context.Context, k int) ([]models.Surge, error)
	Changes() <-chan struct{}
}

type Handler struct {
	engine Engine
	hub    *Hub
}

func NewHandler(engine Engine, hub *Hub) *Handler {
	return &Handler{engine: engine, hub: hub}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/snapshot", h.Snapshot)
	g.GET("/panels", h.Panels)
	g.GET("/panels/:name", h.Panel)
	g.POST("/panels/:name/refresh", h.RefreshPanel)
	g.GET("/digest", h.Digest)
	g.GET("/ticker", h.Ticker)

	g.GET("/watchlist", h.Watchlist)
	g.POST("/watchlist", h.AddWatch)
	g.DELETE("/watchlist/:source/:id", h.RemoveWatch)

	g.GET("/trend", h.Trend)
	g.PUT("/trend", h.SelectTrend)
	g.DELETE("/trend", h.ClearTrend)
	g.PUT("/trend/days/:days", h.SetDays)
	g.PUT("/trend/forecast/:on", h.SetForecast)

	g.GET("/surges", h.Surges)
	g.RouteNotFound("/*", notFound)

	if h.hub != nil {
		e.GET("/ws", h.hub.Serve)
	}
}

func (h *Handler) Health(c echo.Context) error {
	return successResponse(c, map[string]string{"status": "ok"})
}

func (h *Handler) Snapshot(c echo.Context) error {
	return successResponse(c, h.engine.Snapshot())
}

func (h *Handler) Panels(c echo.Context) error {
	return successResponse(c, h.engine.Snapshot().Panels)
}

func (h *Handler) Panel(c echo.Context) error {
	req := &panelRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	st, err := h.engine.Panel(req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, st)
}

func (h *Handler) RefreshPanel(c echo.Context) error {
	req := &panelRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	if err := h.engine.RefreshPanel(c.Request().Context(), req.Name); err != nil {
		return errorResponse(c, err)
	}
	st, err := h.engine.Panel(req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, st)
}

func (h *Handler) Digest(c echo.Context) error {
	req := &digestRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	return successResponse(c, h.engine.Digest(req.Tag))
}

func (h *Handler) Ticker(c echo.Context) error {
	return successResponse(c, h.engine.Ticker())
}

func (h *Handler) Watchlist(c echo.Context) error {
	return successResponse(c, h.engine.WatchItems())
}

type watchResult struct {
	Persisted bool                  `json:"persisted"`
	Items     []dashboard.WatchItem `json:"items"`
}

func (h *Handler) AddWatch(c echo.Context) error {
	req := &watchRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	entry := models.WatchEntry{ID: req.ID, Name: req.Name, Source: models.Source(req.Source)}
	if err := h.engine.AddWatch(entry); err != nil {
		if entry.Validate() != nil {
			return errorResponse(c, err)
		}
		logger.Error("Failed to persist watch-list: %v", err)
		return successResponse(c, watchResult{Persisted: false, Items: h.engine.WatchItems()})
	}
	return successResponse(c, watchResult{Persisted: true, Items: h.engine.WatchItems()})
}

func (h *Handler) RemoveWatch(c echo.Context) error {
	req := &watchKeyRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	persisted := true
	if err := h.engine.RemoveWatch(req.ID, models.Source(req.Source)); err != nil {
		logger.Error("Failed to persist watch-list: %v", err)
		persisted = false
	}
	return successResponse(c, watchResult{Persisted: persisted, Items: h.engine.WatchItems()})
}

type trendView struct {
	trend.ChartState
	AllowedDays []int `json:"allowed_days"`
}

func (h *Handler) trendResponse(c echo.Context) error {
	return successResponse(c, trendView{ChartState: h.engine.Trend(), AllowedDays: h.engine.TrendDays()})
}

func (h *Handler) Trend(c echo.Context) error {
	return h.trendResponse(c)
}

func (h *Handler) SelectTrend(c echo.Context) error {
	req := &trendRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	t := models.TrendTarget{ID: req.ID, Name: req.Name, Source: models.Source(req.Source)}
	if err := h.engine.SelectTrend(t); err != nil {
		return errorResponse(c, err)
	}
	return h.trendResponse(c)
}

func (h *Handler) ClearTrend(c echo.Context) error {
	h.engine.ClearTrend()
	return h.trendResponse(c)
}

func (h *Handler) SetDays(c echo.Context) error {
	req := &daysRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	if err := h.engine.SetTrendDays(req.Days); err != nil {
		return errorResponse(c, err)
	}
	return h.trendResponse(c)
}

func (h *Handler) SetForecast(c echo.Context) error {
	req := &forecastRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	h.engine.SetTrendForecast(req.On)
	return h.trendResponse(c)
}

func (h *Handler) Surges(c echo.Context) error {
	req := &surgesRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	surges, err := h.engine.RecentSurges(c.Request().Context(), req.Limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, surges)
}

func notFound(c echo.Context) error {
	return dataResponse(c, http.StatusNotFound, "route not found")
}
