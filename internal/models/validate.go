package models

import (
	"fmt"
	"sort"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/rewired-gh/gamepulse/internal/logger"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

func applyDefaults(v interface{}) error {
	if err := defaults.Set(v); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}

// Check applies default values to v and validates it. v must be a pointer
// to a struct.
func Check(v interface{}) error {
	if err := applyDefaults(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// Clean returns the valid elements of items with defaults applied. Invalid
// elements are dropped. The result is never nil.
func Clean[T any](items []T) []T {
	out := make([]T, 0, len(items))
	for i := range items {
		if err := Check(&items[i]); err != nil {
			logger.Debug("dropping invalid %T: %v", items[i], err)
			continue
		}
		out = append(out, items[i])
	}
	return out
}

// Normalize fills defaults, drops invalid points, orders both series by
// time, and drops forecast points that do not follow the last history point.
func (h *HistoryResponse) Normalize() {
	_ = applyDefaults(h)
	h.Data = Clean(h.Data)
	h.Forecast = Clean(h.Forecast)
	sort.SliceStable(h.Data, func(i, j int) bool { return h.Data[i].RecordedAt < h.Data[j].RecordedAt })
	sort.SliceStable(h.Forecast, func(i, j int) bool { return h.Forecast[i].RecordedAt < h.Forecast[j].RecordedAt })

	if len(h.Data) == 0 {
		return
	}
	last := h.Data[len(h.Data)-1].RecordedAt
	kept := h.Forecast[:0]
	for _, p := range h.Forecast {
		if p.RecordedAt > last {
			kept = append(kept, p)
		}
	}
	h.Forecast = kept
}

// ValidateTarget checks a trend target at the request boundary.
func ValidateTarget(t TrendTarget) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return nil
}
