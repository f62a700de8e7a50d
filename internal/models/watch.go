// Package models defines the core domain entities: watched games, live
// values, history and forecast points, trend targets, and panel payloads.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Source is the platform a tracked entity comes from.
type Source string

const (
	SourceSteam  Source = "steam"
	SourceTwitch Source = "twitch"
)

// Sources lists every known source in display order.
var Sources = []Source{SourceSteam, SourceTwitch}

var (
	ErrInvalidSource = errors.New("invalid source")
	ErrEmptyID       = errors.New("id must not be empty")
	ErrInvalidTarget = errors.New("invalid trend target")
)

// ParseSource converts a raw string into a Source.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
	return src, nil
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceSteam || s == SourceTwitch
}

// Label returns the display name of the source.
func (s Source) Label() string {
	switch s {
	case SourceSteam:
		return "Steam"
	case SourceTwitch:
		return "Twitch"
	default:
		return string(s)
	}
}

// Unit names what a live value counts for this source.
func (s Source) Unit() string {
	if s == SourceSteam {
		return "players"
	}
	return "viewers"
}

// WatchEntry is one watched game. The pair (ID, Source) is the identity;
// ids are not unique across sources.
type WatchEntry struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
	Name   string `json:"name"`
	// AddedAt is epoch milliseconds, matching the persisted schema.
	AddedAt int64 `json:"addedAt"`
}

// Key returns the identity of the entry.
func (e WatchEntry) Key() LiveKey {
	return LiveKey{Source: e.Source, ID: e.ID}
}

// Added returns AddedAt as a time.
func (e WatchEntry) Added() time.Time {
	return time.UnixMilli(e.AddedAt)
}

// Validate checks entry field constraints.
func (e WatchEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if !e.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, e.Source)
	}
	return nil
}

// LiveKey identifies a live value by (source, id).
type LiveKey struct {
	Source Source
	ID     string
}

// String renders the key as "source:id".
func (k LiveKey) String() string {
	return string(k.Source) + ":" + k.ID
}

// MarshalText lets LiveKey act as a JSON object key.
func (k LiveKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses "source:id". Unknown sources are rejected.
func (k *LiveKey) UnmarshalText(b []byte) error {
	src, id, ok := strings.Cut(string(b), ":")
	if !ok || id == "" {
		return fmt.Errorf("malformed live key %q", string(b))
	}
	if !Source(src).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, src)
	}
	k.Source = Source(src)
	k.ID = id
	return nil
}

// LiveValues maps (source, id) to the current live count. It is rebuilt
// whole on every aggregation cycle and must not be mutated after publication.
type LiveValues map[LiveKey]float64

// Get returns the value for (source, id) if present.
func (v LiveValues) Get(source Source, id string) (float64, bool) {
	val, ok := v[LiveKey{Source: source, ID: id}]
	return val, ok
}

// TrendTarget is the entity whose trend chart is open.
type TrendTarget struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name"`
	Source Source `json:"source" validate:"required,oneof=steam twitch"`
}

// Key returns the identity of the target.
func (t TrendTarget) Key() LiveKey {
	return LiveKey{Source: t.Source, ID: t.ID}
}
