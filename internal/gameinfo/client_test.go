package gameinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/gamepulse/internal/models"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SteamTopGames(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/api/steam/top-games": `{"data":[
			{"rank":1,"appid":730,"name":"Counter-Strike 2","current_players":1500000},
			{"rank":2,"appid":0,"name":"broken"}
		],"source":"Steam Web API"}`,
	})
	c := NewClient(srv.URL, time.Second)

	games, err := c.SteamTopGames(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, int64(730), games[0].AppID)
	assert.Equal(t, 1500000.0, games[0].CurrentPlayers)
}

func TestClient_MissingDataDefaultsToEmpty(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/api/twitch/top-games": `{}`,
		"/api/news":             `{"data":{}}`,
		"/api/google-trends":    `{"data":null}`,
		"/api/weekly-digest":    `{"data":{"digest":[{"game":"","items":[]}]}}`,
	})
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	games, err := c.TwitchTopGames(ctx)
	require.NoError(t, err)
	assert.NotNil(t, games)
	assert.Empty(t, games)

	news, err := c.News(ctx)
	require.NoError(t, err)
	assert.NotNil(t, news.News)
	assert.NotNil(t, news.SourceCounts)

	trends, err := c.GoogleTrends(ctx)
	require.NoError(t, err)
	assert.NotNil(t, trends.Gaming)
	assert.NotNil(t, trends.Anime)

	digest, err := c.WeeklyDigest(ctx)
	require.NoError(t, err)
	assert.Empty(t, digest.Digest)
}

func TestClient_PlayerCount(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/api/steam/player-count/730": `{"appid":730,"player_count":1234}`,
		"/api/steam/player-count/1":   `{"appid":1,"player_count":null}`,
	})
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	v, err := c.LiveValue(ctx, models.WatchEntry{ID: "730", Source: models.SourceSteam})
	require.NoError(t, err)
	assert.Equal(t, 1234.0, v)

	_, err = c.SteamPlayerCount(ctx, "1")
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = c.LiveValue(ctx, models.WatchEntry{ID: "9", Source: models.SourceTwitch})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, c.Supports(models.SourceTwitch))
}

func TestClient_NotFoundIsStatusError(t *testing.T) {
	srv := newTestServer(t, map[string]string{})
	c := NewClient(srv.URL, time.Second)
	_, err := c.Discussions(context.Background())
	assert.ErrorIs(t, err, ErrStatus)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"free":[{"name":"Game","rank":1}]}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Second, WithRetry(3, time.Millisecond))
	charts, err := c.MobileIOS(context.Background())
	require.NoError(t, err)
	assert.Len(t, charts.Free, 1)
	assert.NotNil(t, charts.Grossing)
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Second, WithRetry(2, time.Millisecond))
	_, err := c.SteamTopGames(context.Background())
	assert.ErrorIs(t, err, ErrStatus)
}

func TestClient_MobileFetchesBothStores(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/api/mobile/ios":     `{"data":{"free":[{"name":"A"}],"grossing":[]}}`,
		"/api/mobile/android": `{"data":{"free":[],"grossing":[{"name":"B"},{"name":"C"}]}}`,
	})
	c := NewClient(srv.URL, time.Second)

	m, err := c.Mobile(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.IOS.Free, 1)
	assert.Len(t, m.Android.Grossing, 2)
}

func TestClient_MobileFailsIfOneStoreFails(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/api/mobile/ios": `{"data":{"free":[],"grossing":[]}}`,
	})
	c := NewClient(srv.URL, time.Second)

	_, err := c.Mobile(context.Background())
	assert.ErrorIs(t, err, ErrStatus)
}

func TestClient_HistoryQueryAndNormalize(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/steam/730", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{
			"data":[{"value":20,"recorded_at":200},{"value":10,"recorded_at":100}],
			"forecast":[{"value":25,"recorded_at":300}],
			"game_id":"730","source":"steam"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Second)
	h, err := c.History(context.Background(), models.SourceSteam, "730", 90, true)
	require.NoError(t, err)

	assert.Equal(t, "days=30&forecast=true", gotQuery)
	require.Len(t, h.Data, 2)
	assert.Equal(t, int64(100), h.Data[0].RecordedAt)
	assert.Len(t, h.Forecast, 1)
}

func TestClient_MalformedBody(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/api/news": `not json`})
	c := NewClient(srv.URL, time.Second)
	_, err := c.News(context.Background())
	assert.Error(t, err)
}
