package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
	"github.com/TreasuredLabs/TreasuredLabs/internal/scanner"
)

// TelegramSink delivers alerts via the Telegram Bot API. The subscriber id is
// used as the destination chat id.
type TelegramSink struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramSink builds a Telegram delivery sink.
func NewTelegramSink(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramSink{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_sink").Logger(),
	}
}

// Deliver sends the rendered alert text via the sendMessage API.
func (s *TelegramSink) Deliver(ctx context.Context, subscriberID string, a alert.Alert) error {
	payload := map[string]string{
		"chat_id": subscriberID,
		"text":    renderMessage(a),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	s.logger.Info().
		Str("subscriber", subscriberID).
		Str("alert", a.ID).
		Str("kind", string(a.Kind)).
		Msg("alert sent via telegram")
	return nil
}

// renderMessage builds the alert text, with a kind-specific body.
func renderMessage(a alert.Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[TreasureX %s Alert]\n", strings.ToUpper(string(a.Kind))))
	builder.WriteString(fmt.Sprintf("Contract: %s\n", a.ContractID))
	builder.WriteString(fmt.Sprintf("Confidence: %.0f/100\n", a.Confidence))
	builder.WriteString(fmt.Sprintf("Priority: %s\n", a.Priority))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", a.Timestamp.UTC().Format(time.RFC3339)))

	switch a.Kind {
	case alert.KindRisk:
		if a.Risk != nil {
			builder.WriteString(fmt.Sprintf("Safety score: %.0f/100\n", a.Risk.SafetyScore))
			builder.WriteString(fmt.Sprintf("Rug-pull risk: %.0f/100\n", a.Risk.RugPullRisk))
			if a.Risk.KnownRug {
				builder.WriteString("WARNING: contract is on the known-rug list\n")
			}
			for _, flag := range flagNames(a.Risk.Flags) {
				builder.WriteString(fmt.Sprintf("Flag: %s\n", flag))
			}
		}
	default:
		for _, p := range a.Patterns {
			for _, sig := range p.Signals {
				builder.WriteString(fmt.Sprintf("Signal %s: %.2f\n", sig.Name, sig.Value))
			}
		}
	}

	return builder.String()
}

func flagNames(f scanner.SecurityFlags) []string {
	var names []string
	if f.MintAuthority {
		names = append(names, "mint authority enabled")
	}
	if f.FreezeAuthority {
		names = append(names, "freeze authority enabled")
	}
	if f.OwnershipNotRenounced {
		names = append(names, "ownership not renounced")
	}
	if f.Blacklist {
		names = append(names, "blacklist capability")
	}
	if f.AbnormalTax {
		names = append(names, "abnormal tax rate")
	}
	if f.MaliciousBytecode {
		names = append(names, "malicious bytecode patterns")
	}
	return names
}

var _ alert.Sink = (*TelegramSink)(nil)
