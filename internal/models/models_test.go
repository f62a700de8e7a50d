package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestWatchEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   WatchEntry
		wantErr error
	}{
		{
			name:  "valid steam entry",
			entry: WatchEntry{ID: "730", Source: SourceSteam, Name: "Counter-Strike 2"},
		},
		{
			name:  "valid twitch entry",
			entry: WatchEntry{ID: "21779", Source: SourceTwitch, Name: "League of Legends"},
		},
		{
			name:    "empty id",
			entry:   WatchEntry{ID: "  ", Source: SourceSteam},
			wantErr: ErrEmptyID,
		},
		{
			name:    "unknown source",
			entry:   WatchEntry{ID: "1", Source: "epic"},
			wantErr: ErrInvalidSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	if s, err := ParseSource(" Steam "); err != nil || s != SourceSteam {
		t.Errorf("ParseSource(Steam) = %q, %v", s, err)
	}
	if _, err := ParseSource("xbox"); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("ParseSource(xbox) error = %v, want ErrInvalidSource", err)
	}
}

func TestLiveValuesJSONKeys(t *testing.T) {
	v := LiveValues{
		{Source: SourceSteam, ID: "730"}: 1200,
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"steam:730":1200}` {
		t.Errorf("Marshal = %s", b)
	}

	var back LiveValues
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got, ok := back.Get(SourceSteam, "730"); !ok || got != 1200 {
		t.Errorf("Get = %v, %v", got, ok)
	}
}

func TestLiveKeyUnmarshalMalformed(t *testing.T) {
	var k LiveKey
	if err := k.UnmarshalText([]byte("steam")); err == nil {
		t.Error("expected error for key without separator")
	}
}

func TestLiveKeyUnmarshalUnknownSource(t *testing.T) {
	var k LiveKey
	err := k.UnmarshalText([]byte("epic:fortnite"))
	if !errors.Is(err, ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
	if k != (LiveKey{}) {
		t.Errorf("key modified on error: %+v", k)
	}

	var v LiveValues
	if err := json.Unmarshal([]byte(`{"epic:fortnite":5}`), &v); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource from LiveValues, got %v", err)
	}

	if err := k.UnmarshalText([]byte("twitch:33214")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if k.Source != SourceTwitch || k.ID != "33214" {
		t.Errorf("got %+v", k)
	}
}

func TestCleanDropsInvalidAndFillsDefaults(t *testing.T) {
	var d Discussions
	raw := `{"bahamut_boards":[{"name":"Genshin"},{"name":""}],"total_count":3}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	d.Normalize()

	if len(d.BahamutBoards) != 1 || d.BahamutBoards[0].Name != "Genshin" {
		t.Errorf("BahamutBoards = %+v, want only Genshin", d.BahamutBoards)
	}
	if d.PTTBoards == nil || d.BahamutArticles == nil || d.PTTArticles == nil {
		t.Error("missing collections should default to empty, not nil")
	}
	if d.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", d.TotalCount)
	}
}

func TestNewsSentimentDefaults(t *testing.T) {
	var n News
	raw := `{"news":[{"title":"patch notes","sentiment":{}}],"sentiment_summary":{}}`
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	n.Normalize()

	if len(n.News) != 1 {
		t.Fatalf("got %d news items, want 1", len(n.News))
	}
	if n.News[0].Sentiment.Label != "neutral" {
		t.Errorf("Sentiment.Label = %q, want neutral", n.News[0].Sentiment.Label)
	}
	if n.SentimentSummary.NeutralPct != 100 {
		t.Errorf("NeutralPct = %v, want 100", n.SentimentSummary.NeutralPct)
	}
	if n.SourceCounts == nil {
		t.Error("SourceCounts should default to empty map")
	}
}

func TestHistoryNormalize(t *testing.T) {
	h := HistoryResponse{
		Data: []HistoryPoint{
			{RecordedAt: 200, Value: 20},
			{RecordedAt: 100, Value: 10},
			{RecordedAt: 0, Value: 5},
		},
		Forecast: []ForecastPoint{
			{RecordedAt: 150, Value: 15},
			{RecordedAt: 300, Value: 30},
		},
	}
	h.Normalize()

	if len(h.Data) != 2 || h.Data[0].RecordedAt != 100 || h.Data[1].RecordedAt != 200 {
		t.Errorf("Data = %+v, want two points ordered by time", h.Data)
	}
	if len(h.Forecast) != 1 || h.Forecast[0].RecordedAt != 300 {
		t.Errorf("Forecast = %+v, want only the point after history", h.Forecast)
	}
}

func TestFilterDigest(t *testing.T) {
	w := WeeklyDigest{
		Digest: []DigestGame{
			{Game: "A", Items: []DigestItem{
				{Title: "a1", Tags: []string{TagAd}},
				{Title: "a2", Tags: []string{TagEvent}},
			}},
			{Game: "B", Items: []DigestItem{
				{Title: "b1", Tags: []string{TagNews}},
			}},
		},
	}

	tests := []struct {
		tag       string
		wantGames int
		wantItems int
	}{
		{TagAll, 2, 0},
		{TagAd, 1, 1},
		{TagEvent, 1, 1},
		{TagCollab, 0, 0},
	}
	for _, tt := range tests {
		got := FilterDigest(w, tt.tag)
		if len(got.Digest) != tt.wantGames {
			t.Errorf("FilterDigest(%q) games = %d, want %d", tt.tag, len(got.Digest), tt.wantGames)
		}
		if tt.tag != TagAll && got.TotalItems != tt.wantItems {
			t.Errorf("FilterDigest(%q) items = %d, want %d", tt.tag, got.TotalItems, tt.wantItems)
		}
	}
}

func TestValidateTarget(t *testing.T) {
	if err := ValidateTarget(TrendTarget{ID: "730", Source: SourceSteam}); err != nil {
		t.Errorf("valid target: %v", err)
	}
	if err := ValidateTarget(TrendTarget{ID: "730", Source: "epic"}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("invalid source error = %v", err)
	}
	if err := ValidateTarget(TrendTarget{Source: SourceSteam}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("missing id error = %v", err)
	}
}

func TestClampDays(t *testing.T) {
	tests := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {7, 7}, {30, 30}, {31, 30},
	}
	for _, tt := range tests {
		if got := ClampDays(tt.in); got != tt.want {
			t.Errorf("ClampDays(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
