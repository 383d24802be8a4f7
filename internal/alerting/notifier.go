package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tokenwatch/internal/market"
)

// Notification carries everything needed to render one alert delivery.
type Notification struct {
	Alert  market.Alert
	Record *market.Record
}

// Notifier delivers alert notifications to a destination group.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API, addressing
// each alert's owning group as the chat id.
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram notifier.
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with the rendered alert text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": strconv.FormatInt(note.Alert.GroupID, 10),
		"text":    renderMessage(note),
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
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Int64("alert_id", note.Alert.ID).
		Int64("group_id", note.Alert.GroupID).
		Str("ref", note.Alert.Query.Ref).
		Msg("alert delivered")
	return nil
}

func renderMessage(note Notification) string {
	a := note.Alert
	rec := note.Record

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("🔔 %s price alert\n", rec.Symbol))
	builder.WriteString(fmt.Sprintf("Price: $%s (%s%% 24h)\n", rec.Price.StringFixed(6), rec.ChangePct24h.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Target: %s $%s\n", a.Direction, a.Target.String()))
	if rec.Chain != "" {
		builder.WriteString(fmt.Sprintf("Chain: %s\n", rec.Chain))
	}
	if rec.URL != "" {
		builder.WriteString(rec.URL)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
