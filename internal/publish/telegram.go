// Package publish broadcasts analysis reports to a Telegram chat.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelbrown/civicwatch/internal/aggregate"
	"github.com/abelbrown/civicwatch/internal/analysis"
)

// MaxMessageLength is Telegram's limit on a single text message.
const MaxMessageLength = 4096

// Sender delivers one Telegram request.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts reports to one chat.
type Telegram struct {
	api    Sender
	chatID int64
	log    *log.Logger
}

// NewTelegram connects to the Bot API with token. endpoint overrides the
// API URL template (tgbotapi.APIEndpoint when empty).
func NewTelegram(token, endpoint string, chatID int64, logger *log.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram bot token and chat id are required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewTelegramWithSender(api, chatID, logger), nil
}

// NewTelegramWithSender wraps an existing sender.
func NewTelegramWithSender(api Sender, chatID int64, logger *log.Logger) *Telegram {
	if logger == nil {
		logger = log.Default()
	}
	return &Telegram{api: api, chatID: chatID, log: logger}
}

// PublishReport sends a header followed by one message per analysis.
// A failed message does not stop the rest; the count of delivered
// messages is returned with the joined errors.
func (t *Telegram) PublishReport(ctx context.Context, report analysis.Report) (int, error) {
	texts := make([]string, 0, len(report.Analyses)+1)
	texts = append(texts, header(report))
	for i, a := range report.Analyses {
		texts = append(texts, formatAnalysis(i+1, a))
	}

	var errs []error
	sent := 0
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := tgbotapi.NewMessage(t.chatID, truncate(text, MaxMessageLength))
		msg.DisableWebPagePreview = true

		if _, err := t.api.Send(msg); err != nil {
			t.log.Warn("telegram send failed", "message", i, "err", err)
			errs = append(errs, fmt.Errorf("message %d: %w", i, err))
			continue
		}
		sent++
	}

	t.log.Info("published report", "run_id", report.RunID, "sent", sent, "total", len(texts))
	return sent, errors.Join(errs...)
}

func header(report analysis.Report) string {
	var b strings.Builder
	b.WriteString("Opposition AI Kenya: news analysis")
	if !report.Timestamp.IsZero() {
		b.WriteString(" for ")
		b.WriteString(report.Timestamp.Format(analysis.DateLayout))
	}
	fmt.Fprintf(&b, "\n%d article(s)", len(report.Analyses))
	if report.Origin != "" && report.Origin != aggregate.OriginLive {
		fmt.Fprintf(&b, " (source: %s)", report.Origin)
	}
	return b.String()
}

func formatAnalysis(n int, a analysis.ArticleAnalysis) string {
	return fmt.Sprintf("%d. %s\n\n%s\n\nSource: %s", n, a.Title, a.Analysis, a.Source)
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
