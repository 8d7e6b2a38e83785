package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"budgetfx/internal/currency"
)

// Kind classifies a degraded refresh.
type Kind string

const (
	// KindStale means the fetch failed and a previous or cached snapshot is being served.
	KindStale Kind = "stale"
	// KindFailed means the fetch failed and no snapshot for the base is available.
	KindFailed Kind = "failed"
)

// Notification describes a degraded refresh.
type Notification struct {
	Kind Kind
	Base currency.Code
	At   time.Time
	// SnapshotFetchedAt is zero when no snapshot is being served.
	SnapshotFetchedAt time.Time
	Err               error
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    Render(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}

	n.logger.Info().Str("kind", string(note.Kind)).Str("base", string(note.Base)).Msg("alert sent")
	return nil
}

// LogNotifier writes notifications to the log. Used when no channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().Err(note.Err).
		Str("kind", string(note.Kind)).
		Str("base", string(note.Base)).
		Msg(headline(note))
	return nil
}

// Render formats note as plain text.
func Render(note Notification) string {
	var b strings.Builder
	b.WriteString("[budgetfx] ")
	b.WriteString(headline(note))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Base: %s\n", note.Base)
	if !note.At.IsZero() {
		fmt.Fprintf(&b, "At: %s UTC\n", note.At.UTC().Format(time.RFC3339))
	}
	if !note.SnapshotFetchedAt.IsZero() {
		fmt.Fprintf(&b, "Serving rates fetched %s UTC", note.SnapshotFetchedAt.UTC().Format(time.RFC3339))
		if !note.At.IsZero() {
			fmt.Fprintf(&b, " (%s old)", note.At.Sub(note.SnapshotFetchedAt).Round(time.Minute))
		}
		b.WriteString("\n")
	}
	if note.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", note.Err)
	}
	return b.String()
}

func headline(note Notification) string {
	switch note.Kind {
	case KindStale:
		return "Rate refresh failed, using cached data"
	case KindFailed:
		return "Rate refresh failed, no rates available"
	default:
		return "Rate refresh degraded"
	}
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
