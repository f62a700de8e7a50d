package models

// HistoryPoint is one recorded sample, ordered by RecordedAt ascending.
type HistoryPoint struct {
	RecordedAt int64   `json:"recorded_at" validate:"gt=0"`
	Value      float64 `json:"value" validate:"gte=0"`
	GameName   string  `json:"game_name,omitempty"`
}

// ForecastPoint is a projected sample strictly after the last HistoryPoint.
type ForecastPoint struct {
	RecordedAt int64   `json:"recorded_at" validate:"gt=0"`
	Value      float64 `json:"value" validate:"gte=0"`
}

// SeriesPoint is one renderable point. It carries a history value, a
// forecast value, or both at the bridge point.
type SeriesPoint struct {
	RecordedAt    int64    `json:"recorded_at"`
	Label         string   `json:"label,omitempty"`
	HistoryValue  *float64 `json:"history,omitempty"`
	ForecastValue *float64 `json:"forecast,omitempty"`
}

// IsBridge reports whether the point carries both values.
func (p SeriesPoint) IsBridge() bool {
	return p.HistoryValue != nil && p.ForecastValue != nil
}

// ComposedSeries is history optionally followed by a forecast continuation.
type ComposedSeries []SeriesPoint

// MaxHistoryDays bounds history windows.
const MaxHistoryDays = 30

// ClampDays bounds a history window to [1, MaxHistoryDays].
func ClampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > MaxHistoryDays {
		return MaxHistoryDays
	}
	return days
}

// HistoryResponse is the payload of the history endpoint.
type HistoryResponse struct {
	Data     []HistoryPoint  `json:"data" default:"[]"`
	Forecast []ForecastPoint `json:"forecast" default:"[]"`
	GameID   string          `json:"game_id,omitempty"`
	Source   string          `json:"source,omitempty"`
}
