// Package telegram delivers surge alerts and answers watch-list commands
// through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
	"github.com/rewired-gh/gamepulse/internal/series"
)

// Source answers bot commands from dashboard state.
type Source interface {
	Watchlist() []models.WatchEntry
	LiveValues() models.LiveValues
	RecentSurges(ctx context.Context, k int) ([]models.Surge, error)
}

type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

type options struct {
	endpoint string
}

type Option func(*options)

// WithAPIEndpoint overrides the Bot API endpoint format string.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// NewClient creates a Telegram client. The token is verified against the
// Bot API before returning.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, opts ...Option) (*Client, error) {
	o := options{endpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&o)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, o.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands polls for updates in a goroutine until ctx is done.
func (c *Client) ListenForCommands(ctx context.Context, src Source) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, src, update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, src Source, msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		c.reply(msg.Chat.ID, "Pong", "")
		return
	case "watchlist":
		text = formatWatchlist(src.Watchlist(), src.LiveValues())
	case "surges":
		surges, err := src.RecentSurges(ctx, 5)
		if err != nil {
			logger.Warn("Failed to load recent surges: %v", err)
			text = "⚠️ Surge history unavailable"
			c.reply(msg.Chat.ID, text, "")
			return
		}
		text = formatSurges(surges)
	default:
		return
	}
	c.reply(msg.Chat.ID, text, tgbotapi.ModeMarkdownV2)
}

func (c *Client) reply(chatID int64, text, mode string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = mode
	if _, err := c.bot.Send(m); err != nil {
		logger.Warn("Failed to reply to command: %v", err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendSurges announces detected surges. An empty slice sends nothing.
func (c *Client) SendSurges(ctx context.Context, surges []models.Surge) error {
	if len(surges) == 0 {
		return nil
	}
	return c.sendMarkdownV2(ctx, formatSurges(surges))
}

func formatSurges(surges []models.Surge) string {
	if len(surges) == 0 {
		return "No surges recorded yet"
	}
	var b strings.Builder
	b.WriteString("🚨 *Audience Surges*\n\n")
	b.WriteString(fmt.Sprintf("📅 %s\n\n", escapeMarkdownV2(surges[0].DetectedAt.Format("2006-01-02 15:04:05"))))

	for i, s := range surges {
		emoji := "📈"
		if s.Direction() == "down" {
			emoji = "📉"
		}
		name := s.Name
		if name == "" {
			name = s.Key.String()
		}
		b.WriteString(fmt.Sprintf("%d\\. %s \\(%s\\)\n", i+1, escapeMarkdownV2(name), escapeMarkdownV2(s.Key.Source.Label())))
		b.WriteString(fmt.Sprintf("   %s *%s* %s vs avg %s \\(z %s\\)\n\n",
			emoji,
			escapeMarkdownV2(series.FormatCount(s.Value)),
			escapeMarkdownV2(s.Key.Source.Unit()),
			escapeMarkdownV2(series.FormatCount(s.Mean)),
			escapeMarkdownV2(fmt.Sprintf("%+.1f", s.Z)),
		))
	}
	return b.String()
}

func formatWatchlist(entries []models.WatchEntry, values models.LiveValues) string {
	if len(entries) == 0 {
		return "📭 Watch list is empty"
	}
	var b strings.Builder
	b.WriteString("👀 *Watch List*\n\n")
	for _, e := range entries {
		live := "n/a"
		if v, ok := values.Get(e.Source, e.ID); ok {
			live = series.FormatCount(v) + " " + e.Source.Unit()
		}
		b.WriteString(fmt.Sprintf("• %s \\[%s\\]: %s\n",
			escapeMarkdownV2(e.Name), escapeMarkdownV2(e.Source.Label()), escapeMarkdownV2(live)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
