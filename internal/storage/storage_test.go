package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/gamepulse/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(90, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_ReadMissingKey(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Read(context.Background(), "absent"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Read error = %v, want ErrNotFound", err)
	}
}

func TestStorage_WriteThenRead(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.Write(ctx, "gameinfo_watchlist", []byte(`[1]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, "gameinfo_watchlist", []byte(`[2]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(ctx, "gameinfo_watchlist")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != `[2]` {
		t.Errorf("Read = %s, want [2]", got)
	}
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gamepulse.db")
	ctx := context.Background()

	s, err := New(90, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Write(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = s.Close()

	s, err = New(90, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Read(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Read after reopen = %q, %v", got, err)
	}
}

func TestStorage_HistoryOrderedAndWindowed(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	key := models.LiveKey{Source: models.SourceSteam, ID: "730"}
	other := models.LiveKey{Source: models.SourceSteam, ID: "570"}
	names := map[models.LiveKey]string{key: "Counter-Strike 2"}

	samples := []struct {
		at    time.Time
		value float64
	}{
		{now.Add(-10 * 24 * time.Hour), 1},
		{now.Add(-2 * time.Hour), 30},
		{now.Add(-3 * time.Hour), 20},
	}
	for _, sm := range samples {
		if err := s.AppendSamples(ctx, models.LiveValues{key: sm.value, other: 99}, names, sm.at); err != nil {
			t.Fatalf("AppendSamples: %v", err)
		}
	}

	got, err := s.History(ctx, models.SourceSteam, "730", 7)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d points, want 2: %+v", len(got), got)
	}
	if got[0].Value != 20 || got[1].Value != 30 {
		t.Errorf("points not ordered by time: %+v", got)
	}
	if got[0].GameName != "Counter-Strike 2" {
		t.Errorf("GameName = %q", got[0].GameName)
	}

	all, err := s.History(ctx, models.SourceSteam, "730", 365)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("clamped window returned %d points, want 3", len(all))
	}
}

func TestStorage_AppendPurgesOldSamples(t *testing.T) {
	s, err := New(1, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	key := models.LiveKey{Source: models.SourceSteam, ID: "730"}
	if err := s.AppendSamples(ctx, models.LiveValues{key: 1}, nil, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}
	if err := s.AppendSamples(ctx, models.LiveValues{key: 2}, nil, now); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM live_samples`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d samples after purge, want 1", n)
	}
}

func TestStorage_StatsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	st := models.RunningStats{
		Key:       models.LiveKey{Source: models.SourceSteam, ID: "730"},
		Count:     12,
		Mean:      1000,
		M2:        5000,
		LastValue: 1100,
		UpdatedAt: time.Unix(0, 42),
	}
	if err := s.SaveStats(ctx, st); err != nil {
		t.Fatalf("SaveStats: %v", err)
	}
	st.Count = 13
	if err := s.SaveStats(ctx, st); err != nil {
		t.Fatalf("SaveStats: %v", err)
	}

	all, err := s.LoadAllStats(ctx)
	if err != nil {
		t.Fatalf("LoadAllStats: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d stats, want 1", len(all))
	}
	got := all[st.Key]
	if got == nil || got.Count != 13 || got.Mean != 1000 || !got.UpdatedAt.Equal(st.UpdatedAt) {
		t.Errorf("loaded stats = %+v", got)
	}
}

func TestStorage_Surges(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		sg := &models.Surge{
			Key:        models.LiveKey{Source: models.SourceSteam, ID: "730"},
			Name:       "Counter-Strike 2",
			Value:      float64(1000 * (i + 1)),
			Z:          3.5,
			DetectedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddSurge(ctx, sg); err != nil {
			t.Fatalf("AddSurge: %v", err)
		}
		if sg.ID == "" {
			t.Fatal("AddSurge should assign an ID")
		}
		if i == 2 {
			if err := s.MarkNotified(ctx, sg.ID); err != nil {
				t.Fatalf("MarkNotified: %v", err)
			}
		}
	}

	got, err := s.RecentSurges(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSurges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d surges, want 2", len(got))
	}
	if got[0].Value != 3000 || !got[0].Notified {
		t.Errorf("newest surge = %+v, want value 3000 notified", got[0])
	}
	if got[1].Notified {
		t.Error("older surge should not be notified")
	}

	if err := s.MarkNotified(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkNotified(missing) error = %v, want ErrNotFound", err)
	}
}
