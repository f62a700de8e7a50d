package models

import "strings"

// SteamGame is one row of the Steam top-games panel.
type SteamGame struct {
	Rank           int     `json:"rank"`
	AppID          int64   `json:"appid" validate:"gt=0"`
	Name           string  `json:"name" validate:"required"`
	CurrentPlayers float64 `json:"current_players" validate:"gte=0"`
	PeakToday      float64 `json:"peak_today" validate:"gte=0"`
}

// PlayerCount is the single live value for one Steam app.
type PlayerCount struct {
	AppID       int64    `json:"appid"`
	PlayerCount *float64 `json:"player_count"`
}

// TwitchGame is one row of the Twitch top-games panel.
type TwitchGame struct {
	Rank        int     `json:"rank"`
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	BoxArtURL   string  `json:"box_art_url"`
	ViewerCount float64 `json:"viewer_count" validate:"gte=0"`
}

// Sentiment is the score attached to a single article.
type Sentiment struct {
	Score float64 `json:"score" default:"0.5" validate:"gte=0,lte=1"`
	Label string  `json:"label" default:"neutral"`
}

// SentimentSummary aggregates sentiment over a batch of articles.
type SentimentSummary struct {
	AvgScore    float64 `json:"avg_score" default:"0.5"`
	Label       string  `json:"label" default:"neutral"`
	PositivePct float64 `json:"positive_pct"`
	NegativePct float64 `json:"negative_pct"`
	NeutralPct  float64 `json:"neutral_pct" default:"100"`
}

// ForumBoard is a hot board on Bahamut or PTT.
type ForumBoard struct {
	Rank       int     `json:"rank"`
	Name       string  `json:"name" validate:"required"`
	URL        string  `json:"url"`
	BSN        string  `json:"bsn,omitempty"`
	Category   string  `json:"category,omitempty"`
	Title      string  `json:"title,omitempty"`
	Popularity float64 `json:"popularity,omitempty"`
}

// ForumArticle is a hot thread on Bahamut or PTT.
type ForumArticle struct {
	Title           string     `json:"title" validate:"required"`
	URL             string     `json:"url"`
	Source          string     `json:"source"`
	Popularity      string     `json:"popularity,omitempty"`
	PopularityValue float64    `json:"popularity_value,omitempty"`
	Sentiment       *Sentiment `json:"sentiment,omitempty"`
}

// Discussions is the payload of the discussion panel.
type Discussions struct {
	BahamutBoards    []ForumBoard      `json:"bahamut_boards" default:"[]"`
	PTTBoards        []ForumBoard      `json:"ptt_boards" default:"[]"`
	BahamutArticles  []ForumArticle    `json:"bahamut_articles" default:"[]"`
	PTTArticles      []ForumArticle    `json:"ptt_articles" default:"[]"`
	TotalCount       int               `json:"total_count"`
	SentimentSummary *SentimentSummary `json:"sentiment_summary,omitempty"`
	UpdatedAt        int64             `json:"updated_at,omitempty"`
}

// Normalize fills defaults and drops invalid elements.
func (d *Discussions) Normalize() {
	_ = applyDefaults(d)
	d.BahamutBoards = Clean(d.BahamutBoards)
	d.PTTBoards = Clean(d.PTTBoards)
	d.BahamutArticles = Clean(d.BahamutArticles)
	d.PTTArticles = Clean(d.PTTArticles)
	if d.SentimentSummary != nil {
		_ = applyDefaults(d.SentimentSummary)
	}
}

// NewsItem is one aggregated news article.
type NewsItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title" validate:"required"`
	URL         string     `json:"url"`
	Summary     string     `json:"summary"`
	Source      string     `json:"source"`
	SourceIcon  string     `json:"source_icon"`
	PublishedAt string     `json:"published_at,omitempty"`
	FetchedAt   int64      `json:"fetched_at,omitempty"`
	Sentiment   *Sentiment `json:"sentiment,omitempty"`
}

// News is the payload of the news panel.
type News struct {
	News             []NewsItem        `json:"news" default:"[]"`
	TotalCount       int               `json:"total_count"`
	MaxCount         int               `json:"max_count,omitempty"`
	SourceCounts     map[string]int    `json:"source_counts" default:"{}"`
	SentimentSummary *SentimentSummary `json:"sentiment_summary,omitempty"`
	UpdatedAt        int64             `json:"updated_at,omitempty"`
}

// Normalize fills defaults and drops invalid elements.
func (n *News) Normalize() {
	_ = applyDefaults(n)
	n.News = Clean(n.News)
	if n.SentimentSummary != nil {
		_ = applyDefaults(n.SentimentSummary)
	}
}

// MobileApp is one store-chart listing.
type MobileApp struct {
	Rank      int     `json:"rank"`
	Name      string  `json:"name" validate:"required"`
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Icon      string  `json:"icon"`
	Genres    string  `json:"genres"`
	Score     float64 `json:"score,omitempty"`
	Installs  string  `json:"installs,omitempty"`
	Developer string  `json:"developer,omitempty"`
	Chart     string  `json:"chart"`
}

// StoreCharts holds the free and grossing charts of one store.
type StoreCharts struct {
	Free     []MobileApp `json:"free" default:"[]"`
	Grossing []MobileApp `json:"grossing" default:"[]"`
}

// Normalize fills defaults and drops invalid elements.
func (s *StoreCharts) Normalize() {
	_ = applyDefaults(s)
	s.Free = Clean(s.Free)
	s.Grossing = Clean(s.Grossing)
}

// Mobile is the combined payload of the mobile panel.
type Mobile struct {
	IOS     StoreCharts `json:"ios"`
	Android StoreCharts `json:"android"`
}

// Normalize fills defaults and drops invalid elements.
func (m *Mobile) Normalize() {
	m.IOS.Normalize()
	m.Android.Normalize()
}

// Digest tags.
const (
	TagAll    = "all"
	TagAd     = "ad"
	TagCollab = "collab"
	TagEvent  = "event"
	TagNews   = "news"
)

// DigestItem is one marketing item found for a game.
type DigestItem struct {
	Title       string   `json:"title" validate:"required"`
	URL         string   `json:"url"`
	Summary     string   `json:"summary,omitempty"`
	Source      string   `json:"source"`
	PublishedAt string   `json:"published_at,omitempty"`
	Tags        []string `json:"tags" default:"[]"`
}

// HasTag reports whether the item carries tag.
func (i DigestItem) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DigestGame groups the week's items for one game.
type DigestGame struct {
	Game      string         `json:"game" validate:"required"`
	Source    string         `json:"source"`
	Rank      int            `json:"rank"`
	Items     []DigestItem   `json:"items" default:"[]"`
	ItemCount int            `json:"item_count"`
	TagCounts map[string]int `json:"tag_counts" default:"{}"`
}

// DigestPeriod is the covered date range.
type DigestPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyDigest is the payload of the weekly digest panel.
type WeeklyDigest struct {
	Digest     []DigestGame `json:"digest" default:"[]"`
	Period     DigestPeriod `json:"period"`
	GameCount  int          `json:"game_count"`
	TotalItems int          `json:"total_items"`
}

// Normalize fills defaults and drops invalid elements.
func (w *WeeklyDigest) Normalize() {
	_ = applyDefaults(w)
	w.Digest = Clean(w.Digest)
	for i := range w.Digest {
		w.Digest[i].Items = Clean(w.Digest[i].Items)
	}
}

// FilterDigest keeps only items tagged with tag and drops games left
// without items. TagAll and "" return the digest unchanged.
func FilterDigest(w WeeklyDigest, tag string) WeeklyDigest {
	if tag == "" || tag == TagAll {
		return w
	}
	out := WeeklyDigest{Period: w.Period, Digest: []DigestGame{}}
	for _, g := range w.Digest {
		items := make([]DigestItem, 0, len(g.Items))
		for _, it := range g.Items {
			if it.HasTag(tag) {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			continue
		}
		g.Items = items
		g.ItemCount = len(items)
		out.Digest = append(out.Digest, g)
		out.TotalItems += len(items)
	}
	out.GameCount = len(out.Digest)
	return out
}

// TrendArticle is a news link attached to a search trend.
type TrendArticle struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// SearchTrend is one trending search query.
type SearchTrend struct {
	Title      string         `json:"title" validate:"required"`
	Traffic    string         `json:"traffic,omitempty"`
	ImageURL   string         `json:"image_url,omitempty"`
	Related    []string       `json:"related" default:"[]"`
	Articles   []TrendArticle `json:"articles" default:"[]"`
	Source     string         `json:"source,omitempty"`
	Categories []string       `json:"categories" default:"[]"`
}

// GoogleTrends is the payload of the search-trend panel.
type GoogleTrends struct {
	Gaming []SearchTrend `json:"gaming" default:"[]"`
	Anime  []SearchTrend `json:"anime" default:"[]"`
}

// Normalize fills defaults and drops invalid elements.
func (g *GoogleTrends) Normalize() {
	_ = applyDefaults(g)
	g.Gaming = Clean(g.Gaming)
	g.Anime = Clean(g.Anime)
}

// TickerItem is one entry of the header ticker.
type TickerItem struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}
