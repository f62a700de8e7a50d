package monitor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/storage"
)

var cs2 = models.LiveKey{Source: models.SourceSteam, ID: "730"}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(7, ":memory:")
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func warmUp(t *testing.T, m *Monitor) {
	t.Helper()
	for _, v := range []float64{100, 102, 98, 101, 99} {
		if got := m.Process(context.Background(), models.LiveValues{cs2: v}, nil); len(got) != 0 {
			t.Fatalf("expected no surges during warm-up, got %d", len(got))
		}
	}
}

func TestWelfordMatchesNaive(t *testing.T) {
	values := []float64{3, 7, 7, 19, 24, 1}
	var st models.RunningStats
	for _, v := range values {
		UpdateWelford(&st, v)
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	sigma := math.Sqrt(sq / float64(len(values)-1))

	if math.Abs(st.Mean-mean) > 1e-9 {
		t.Errorf("mean = %v, want %v", st.Mean, mean)
	}
	if math.Abs(GetSigma(&st)-sigma) > 1e-9 {
		t.Errorf("sigma = %v, want %v", GetSigma(&st), sigma)
	}
}

func TestGetSigmaFloor(t *testing.T) {
	st := models.RunningStats{}
	if got := GetSigma(&st); got != MinSigma {
		t.Errorf("empty sigma = %v, want %v", got, MinSigma)
	}
	for i := 0; i < 10; i++ {
		UpdateWelford(&st, 5)
	}
	if got := GetSigma(&st); got != MinSigma {
		t.Errorf("flat sigma = %v, want %v", got, MinSigma)
	}
}

func TestProcessDetectsSurge(t *testing.T) {
	m := New(nil, DefaultConfig())
	warmUp(t, m)

	names := map[models.LiveKey]string{cs2: "Counter-Strike 2"}
	surges := m.Process(context.Background(), models.LiveValues{cs2: 1000}, names)
	if len(surges) != 1 {
		t.Fatalf("expected 1 surge, got %d", len(surges))
	}
	s := surges[0]
	if s.Name != "Counter-Strike 2" || s.Direction() != "up" {
		t.Errorf("unexpected surge: %+v", s)
	}
	if s.Z < DefaultConfig().Threshold {
		t.Errorf("z = %v below threshold", s.Z)
	}

	st, ok := m.Stats(cs2)
	if !ok {
		t.Fatal("expected stats for key")
	}
	if st.Count != 5 {
		t.Errorf("outlier past ceiling must not be folded, count = %d", st.Count)
	}
	if st.LastValue != 1000 {
		t.Errorf("last value = %v, want 1000", st.LastValue)
	}
}

func TestProcessFoldsOrdinaryValues(t *testing.T) {
	m := New(nil, DefaultConfig())
	warmUp(t, m)

	if got := m.Process(context.Background(), models.LiveValues{cs2: 100.5}, nil); len(got) != 0 {
		t.Fatalf("expected no surges, got %d", len(got))
	}
	st, _ := m.Stats(cs2)
	if st.Count != 6 {
		t.Errorf("count = %d, want 6", st.Count)
	}
}

func TestProcessTopK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopK = 1
	m := New(nil, cfg)

	other := models.LiveKey{Source: models.SourceSteam, ID: "570"}
	for _, v := range []float64{100, 102, 98, 101, 99} {
		m.Process(context.Background(), models.LiveValues{cs2: v, other: v}, nil)
	}
	surges := m.Process(context.Background(), models.LiveValues{cs2: 200, other: 5000}, nil)
	if len(surges) != 1 {
		t.Fatalf("expected 1 surge after top-k, got %d", len(surges))
	}
	if surges[0].Key != other {
		t.Errorf("expected strongest surge first, got %s", surges[0].Key)
	}
}

func TestFilterRecentlySent(t *testing.T) {
	m := New(nil, DefaultConfig())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	up := models.Surge{Key: cs2, Z: 5}
	down := models.Surge{Key: cs2, Z: -5}

	m.RecordNotified([]models.Surge{up})

	if got := m.FilterRecentlySent([]models.Surge{up}); len(got) != 0 {
		t.Errorf("same direction within cooldown should be filtered")
	}
	if got := m.FilterRecentlySent([]models.Surge{down}); len(got) != 1 {
		t.Errorf("opposite direction should pass")
	}

	now = now.Add(2 * time.Hour)
	if got := m.FilterRecentlySent([]models.Surge{up}); len(got) != 1 {
		t.Errorf("surge after cooldown should pass")
	}
}

func TestCheckpointAndRestore(t *testing.T) {
	s := newTestStorage(t)
	cfg := DefaultConfig()
	cfg.CheckpointInterval = 5

	m := New(s, cfg)
	warmUp(t, m)

	restored := New(s, cfg)
	st, ok := restored.Stats(cs2)
	if !ok {
		t.Fatal("expected checkpointed stats to be restored")
	}
	if st.Count != 5 || math.Abs(st.Mean-100) > 1e-9 {
		t.Errorf("restored stats = %+v", st)
	}
}

func TestShutdownCheckpoints(t *testing.T) {
	s := newTestStorage(t)
	cfg := DefaultConfig()
	cfg.CheckpointInterval = 0

	m := New(s, cfg)
	m.Process(context.Background(), models.LiveValues{cs2: 42}, nil)

	all, err := s.LoadAllStats(context.Background())
	if err != nil {
		t.Fatalf("LoadAllStats: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected nothing persisted before shutdown, got %d", len(all))
	}

	m.Shutdown()
	all, err = s.LoadAllStats(context.Background())
	if err != nil {
		t.Fatalf("LoadAllStats: %v", err)
	}
	if got := all[cs2]; got == nil || got.LastValue != 42 {
		t.Errorf("expected stats persisted on shutdown, got %+v", got)
	}
}

func TestSurgesRecorded(t *testing.T) {
	s := newTestStorage(t)
	m := New(s, DefaultConfig())
	warmUp(t, m)

	surges := m.Process(context.Background(), models.LiveValues{cs2: 1000}, map[models.LiveKey]string{cs2: "CS2"})
	if len(surges) != 1 || surges[0].ID == "" {
		t.Fatalf("expected 1 recorded surge with an id, got %+v", surges)
	}

	recent, err := s.RecentSurges(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentSurges: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != surges[0].ID {
		t.Errorf("unexpected recent surges: %+v", recent)
	}
}
