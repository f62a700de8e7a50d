package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by durable stores when a key is absent.
var ErrNotFound = errors.New("not found")

// RunningStats holds Welford running statistics for one live key.
type RunningStats struct {
	Key       LiveKey
	Count     int
	Mean      float64
	M2        float64
	LastValue float64
	UpdatedAt time.Time
}

// Surge is a live value far outside its running distribution.
type Surge struct {
	ID         string    `json:"id"`
	Key        LiveKey   `json:"key"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Mean       float64   `json:"mean"`
	Sigma      float64   `json:"sigma"`
	Z          float64   `json:"z"`
	DetectedAt time.Time `json:"detected_at"`
	Notified   bool      `json:"notified"`
}

// Direction returns "up" or "down".
func (s Surge) Direction() string {
	if s.Z < 0 {
		return "down"
	}
	return "up"
}
