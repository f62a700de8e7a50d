// Package monitor detects surges in committed live values using running
// mean and variance per watched game.
package monitor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
)

type Config struct {
	Threshold          float64
	MinSamples         int
	Ceiling            float64
	CheckpointInterval int
	Cooldown           time.Duration
	TopK               int
}

func DefaultConfig() Config {
	return Config{
		Threshold:          3.0,
		MinSamples:         5,
		Ceiling:            10.0,
		CheckpointInterval: 12,
		Cooldown:           time.Hour,
		TopK:               10,
	}
}

// Store persists running statistics and detected surges.
type Store interface {
	LoadAllStats(ctx context.Context) (map[models.LiveKey]*models.RunningStats, error)
	SaveStats(ctx context.Context, st models.RunningStats) error
	AddSurge(ctx context.Context, surge *models.Surge) error
}

type notifiedRecord struct {
	Direction string
	SentAt    time.Time
}

type Monitor struct {
	mu         sync.Mutex
	store      Store
	states     map[models.LiveKey]*models.RunningStats
	notified   map[models.LiveKey]notifiedRecord
	config     Config
	cycleCount int
	now        func() time.Time
}

// New creates a Monitor, restoring persisted statistics from s. A nil s
// keeps statistics in memory only.
func New(s Store, config Config) *Monitor {
	m := &Monitor{
		store:    s,
		states:   make(map[models.LiveKey]*models.RunningStats),
		notified: make(map[models.LiveKey]notifiedRecord),
		config:   config,
		now:      time.Now,
	}
	if s == nil {
		return m
	}

	persisted, err := s.LoadAllStats(context.Background())
	if err != nil {
		logger.Warn("Failed to load persisted stats: %v", err)
	} else {
		m.states = persisted
		logger.Info("Loaded %d persisted live stats", len(persisted))
	}
	return m
}

func (m *Monitor) getOrCreateState(key models.LiveKey) *models.RunningStats {
	if st, exists := m.states[key]; exists {
		return st
	}
	st := &models.RunningStats{Key: key}
	m.states[key] = st
	return st
}

// Process folds one committed live map into the running statistics and
// returns the surges it contains, strongest first. names labels the keys.
func (m *Monitor) Process(ctx context.Context, values models.LiveValues, names map[models.LiveKey]string) []models.Surge {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var surges []models.Surge
	var maxZ float64

	for key, v := range values {
		st := m.getOrCreateState(key)

		if st.Count < m.config.MinSamples {
			UpdateWelford(st, v)
			st.LastValue = v
			st.UpdatedAt = now
			continue
		}

		z := ZScore(st, v)
		if math.Abs(z) > maxZ {
			maxZ = math.Abs(z)
		}
		if math.Abs(z) >= m.config.Threshold {
			surges = append(surges, models.Surge{
				Key:        key,
				Name:       names[key],
				Value:      v,
				Mean:       st.Mean,
				Sigma:      GetSigma(st),
				Z:          z,
				DetectedAt: now,
			})
		}

		// Outliers past the ceiling do not shift the baseline.
		if math.Abs(z) < m.config.Ceiling {
			UpdateWelford(st, v)
		}
		st.LastValue = v
		st.UpdatedAt = now
	}

	sort.Slice(surges, func(i, j int) bool {
		return math.Abs(surges[i].Z) > math.Abs(surges[j].Z)
	})
	if m.config.TopK > 0 && len(surges) > m.config.TopK {
		surges = surges[:m.config.TopK]
	}

	logger.Debug("Processed %d live values: max |z|=%.2f, %d surges", len(values), maxZ, len(surges))

	if m.store != nil {
		for i := range surges {
			if err := m.store.AddSurge(ctx, &surges[i]); err != nil {
				logger.Warn("Failed to record surge for %s: %v", surges[i].Key, err)
			}
		}
	}

	m.cycleCount++
	if m.config.CheckpointInterval > 0 && m.cycleCount%m.config.CheckpointInterval == 0 {
		m.checkpointLocked(ctx)
	}
	return surges
}

// Stats returns a copy of the running statistics of key.
func (m *Monitor) Stats(key models.LiveKey) (models.RunningStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	if !ok {
		return models.RunningStats{}, false
	}
	return *st, true
}

// FilterRecentlySent drops surges already announced in the same direction
// within the cooldown.
func (m *Monitor) FilterRecentlySent(surges []models.Surge) []models.Surge {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var result []models.Surge
	for _, s := range surges {
		rec, exists := m.notified[s.Key]
		if exists && now.Sub(rec.SentAt) < m.config.Cooldown && rec.Direction == s.Direction() {
			continue
		}
		result = append(result, s)
	}
	return result
}

// RecordNotified starts the cooldown of each surge.
func (m *Monitor) RecordNotified(surges []models.Surge) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, s := range surges {
		m.notified[s.Key] = notifiedRecord{Direction: s.Direction(), SentAt: now}
	}
}

func (m *Monitor) checkpointLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	for key, st := range m.states {
		if err := m.store.SaveStats(ctx, *st); err != nil {
			logger.Warn("Failed to checkpoint stats for %s: %v", key, err)
		}
	}
}

func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	logger.Info("Checkpointing %d live stats before shutdown", len(m.states))
	m.checkpointLocked(context.Background())
}
