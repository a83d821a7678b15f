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

	"memecoin-radar/internal/fetcher"
)

// Notification 封装新币提醒上下文。
type Notification struct {
	PostedAt        time.Time
	Channel         string
	Name            string
	ContractAddress string
	Chain           string
	MarketCap       string
	Mentions        string
	TimeSinceLaunch string
	// Sightings counts archived posts of the same address, this one included; 0 when unknown.
	Sightings int64
	// Quote is nil when no market data was requested or found.
	Quote         *fetcher.Quote
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     renderMessage(note),
		"disable_web_page_preview": true,
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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
		}
	}

	n.logger.Info().Str("ca", note.ContractAddress).
		Str("name", note.Name).
		Str("channel", note.Channel).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes notifications to the log instead of a chat.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered message.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().Str("ca", note.ContractAddress).Msg(renderMessage(note))
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[New Token]\n")
	builder.WriteString(fmt.Sprintf("Name: %s\n", note.Name))
	if note.Chain != "" {
		builder.WriteString(fmt.Sprintf("CA (%s): %s\n", note.Chain, note.ContractAddress))
	} else {
		builder.WriteString(fmt.Sprintf("CA: %s\n", note.ContractAddress))
	}
	builder.WriteString(fmt.Sprintf("Channel: %s\n", note.Channel))
	if !note.PostedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Posted: %s UTC\n", note.PostedAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("MCap: %s | Mentions: %s | Since open: %s\n", note.MarketCap, note.Mentions, note.TimeSinceLaunch))
	if note.Sightings > 1 {
		builder.WriteString(fmt.Sprintf("Seen: %d posts\n", note.Sightings))
	}
	if q := note.Quote; q != nil {
		builder.WriteString(fmt.Sprintf("Price: $%s (24h %s%%)\n", q.PriceUSD.String(), q.Change24h.StringFixed(2)))
		if !q.LiquidityUSD.IsZero() {
			builder.WriteString(fmt.Sprintf("Liquidity: $%s\n", q.LiquidityUSD.StringFixed(0)))
		}
		if q.URL != "" {
			builder.WriteString(q.URL + "\n")
		}
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
