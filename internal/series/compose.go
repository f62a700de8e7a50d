// Package series composes chartable series from history and forecast points
// and formats their values for display.
package series

import (
	"time"

	"github.com/rewired-gh/gamepulse/internal/models"
)

// MinRenderablePoints is the fewest points a chart draws a line for.
const MinRenderablePoints = 2

// Compose maps history into series points and, when includeForecast is set
// and both inputs are non-empty, continues it with the forecast. The last
// history point becomes the bridge: it carries its value in both fields so
// the two lines meet.
func Compose(history []models.HistoryPoint, forecast []models.ForecastPoint, includeForecast bool) models.ComposedSeries {
	out := make(models.ComposedSeries, 0, len(history)+len(forecast))
	for _, h := range history {
		out = append(out, models.SeriesPoint{
			RecordedAt:   h.RecordedAt,
			HistoryValue: ptr(h.Value),
		})
	}

	if !includeForecast || len(forecast) == 0 || len(history) == 0 {
		return out
	}

	bridge := &out[len(out)-1]
	bridge.ForecastValue = ptr(*bridge.HistoryValue)

	for _, f := range forecast {
		out = append(out, models.SeriesPoint{
			RecordedAt:    f.RecordedAt,
			ForecastValue: ptr(f.Value),
		})
	}
	return out
}

// WithLabels returns a copy of s with each point labelled by FormatTime.
func WithLabels(s models.ComposedSeries, loc *time.Location) models.ComposedSeries {
	out := make(models.ComposedSeries, len(s))
	for i, p := range s {
		p.Label = FormatTime(p.RecordedAt, loc)
		out[i] = p
	}
	return out
}

// Renderable reports whether s has enough points to draw a line.
func Renderable(s models.ComposedSeries) bool {
	return len(s) >= MinRenderablePoints
}

func ptr(v float64) *float64 {
	return &v
}
