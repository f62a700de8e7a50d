// Package gameinfo is the client of the game-info backend API. Every
// response is decoded at the boundary: missing collections become empty and
// invalid elements are dropped.
package gameinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/gamepulse/internal/models"
)

var (
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected status")
	// ErrNoValue is returned when a live lookup carries no value.
	ErrNoValue = errors.New("no live value")
	// ErrUnsupported is returned for live lookups of an unsupported source.
	ErrUnsupported = errors.New("live lookup not supported")
)

// Client provides access to the backend API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the attempt count and linear backoff base for transport
// errors and 5xx responses.
func WithRetry(maxRetries int, delayBase time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		c.retryDelayBase = delayBase
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new backend client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     1,
		retryDelayBase: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

type envelope[T any] struct {
	Data   T      `json:"data"`
	Source string `json:"source,omitempty"`
}

func getData[T any](ctx context.Context, c *Client, path string) (T, error) {
	var env envelope[T]
	if err := c.getJSON(ctx, path, &env); err != nil {
		return env.Data, err
	}
	return env.Data, nil
}

// SteamTopGames returns the ranked current-player list.
func (c *Client) SteamTopGames(ctx context.Context) ([]models.SteamGame, error) {
	games, err := getData[[]models.SteamGame](ctx, c, "/api/steam/top-games")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steam top games: %w", err)
	}
	return models.Clean(games), nil
}

// SteamPlayerCount returns the live player count of one app.
func (c *Client) SteamPlayerCount(ctx context.Context, appID string) (float64, error) {
	var pc models.PlayerCount
	if err := c.getJSON(ctx, "/api/steam/player-count/"+url.PathEscape(appID), &pc); err != nil {
		return 0, fmt.Errorf("failed to fetch player count for %s: %w", appID, err)
	}
	if pc.PlayerCount == nil {
		return 0, fmt.Errorf("app %s: %w", appID, ErrNoValue)
	}
	return *pc.PlayerCount, nil
}

// TwitchTopGames returns the ranked viewer list.
func (c *Client) TwitchTopGames(ctx context.Context) ([]models.TwitchGame, error) {
	games, err := getData[[]models.TwitchGame](ctx, c, "/api/twitch/top-games")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch twitch top games: %w", err)
	}
	return models.Clean(games), nil
}

// Discussions returns forum boards, hot articles and their sentiment.
func (c *Client) Discussions(ctx context.Context) (models.Discussions, error) {
	d, err := getData[models.Discussions](ctx, c, "/api/discussions")
	if err != nil {
		return models.Discussions{}, fmt.Errorf("failed to fetch discussions: %w", err)
	}
	d.Normalize()
	return d, nil
}

// News returns aggregated news items.
func (c *Client) News(ctx context.Context) (models.News, error) {
	n, err := getData[models.News](ctx, c, "/api/news")
	if err != nil {
		return models.News{}, fmt.Errorf("failed to fetch news: %w", err)
	}
	n.Normalize()
	return n, nil
}

// MobileIOS returns the App Store charts.
func (c *Client) MobileIOS(ctx context.Context) (models.StoreCharts, error) {
	s, err := getData[models.StoreCharts](ctx, c, "/api/mobile/ios")
	if err != nil {
		return models.StoreCharts{}, fmt.Errorf("failed to fetch ios charts: %w", err)
	}
	s.Normalize()
	return s, nil
}

// MobileAndroid returns the Google Play charts.
func (c *Client) MobileAndroid(ctx context.Context) (models.StoreCharts, error) {
	s, err := getData[models.StoreCharts](ctx, c, "/api/mobile/android")
	if err != nil {
		return models.StoreCharts{}, fmt.Errorf("failed to fetch android charts: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Mobile fetches both stores concurrently. It fails if either store fails.
func (c *Client) Mobile(ctx context.Context) (models.Mobile, error) {
	var m models.Mobile
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		s, err := c.MobileIOS(ctx)
		m.IOS = s
		return err
	})
	p.Go(func(ctx context.Context) error {
		s, err := c.MobileAndroid(ctx)
		m.Android = s
		return err
	})
	if err := p.Wait(); err != nil {
		return models.Mobile{}, err
	}
	return m, nil
}

// WeeklyDigest returns the weekly marketing digest.
func (c *Client) WeeklyDigest(ctx context.Context) (models.WeeklyDigest, error) {
	w, err := getData[models.WeeklyDigest](ctx, c, "/api/weekly-digest")
	if err != nil {
		return models.WeeklyDigest{}, fmt.Errorf("failed to fetch weekly digest: %w", err)
	}
	w.Normalize()
	return w, nil
}

// GoogleTrends returns the gaming and anime search-trend buckets.
func (c *Client) GoogleTrends(ctx context.Context) (models.GoogleTrends, error) {
	g, err := getData[models.GoogleTrends](ctx, c, "/api/google-trends")
	if err != nil {
		return models.GoogleTrends{}, fmt.Errorf("failed to fetch google trends: %w", err)
	}
	g.Normalize()
	return g, nil
}

// History returns the recorded series of (source, id) over days, and the
// forecast when requested. days is clamped to [1, 30].
func (c *Client) History(ctx context.Context, source models.Source, id string, days int, forecast bool) (models.HistoryResponse, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(models.ClampDays(days)))
	q.Set("forecast", strconv.FormatBool(forecast))
	path := fmt.Sprintf("/api/history/%s/%s?%s", url.PathEscape(string(source)), url.PathEscape(id), q.Encode())

	var h models.HistoryResponse
	if err := c.getJSON(ctx, path, &h); err != nil {
		return models.HistoryResponse{}, fmt.Errorf("failed to fetch history for %s:%s: %w", source, id, err)
	}
	h.Normalize()
	return h, nil
}

// Supports reports whether the backend offers per-id live lookup for source.
// Only Steam has a per-id endpoint.
func (c *Client) Supports(source models.Source) bool {
	return source == models.SourceSteam
}

// LiveValue returns the current live count of a watched entry.
func (c *Client) LiveValue(ctx context.Context, entry models.WatchEntry) (float64, error) {
	if !c.Supports(entry.Source) {
		return 0, fmt.Errorf("%s: %w", entry.Source, ErrUnsupported)
	}
	return c.SteamPlayerCount(ctx, entry.ID)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.doRequest(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelayBase):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
