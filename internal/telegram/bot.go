// Package telegram sends trigger alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"scarecrow/internal/sink"
)

// TelegramBot handles Telegram bot operations
type TelegramBot struct {
	botToken       string
	chatID         string
	apiBase        string
	httpClient     *http.Client
	logger         *log.Logger
	mu             sync.RWMutex
	enabled        bool
	lastAlert      time.Time
	cooldownPeriod time.Duration
}

// Config holds Telegram bot configuration
type Config struct {
	BotToken        string
	ChatID          string
	Enabled         bool
	CooldownSeconds int
}

// TelegramResponse represents the response from Telegram API
type TelegramResponse struct {
	OK          bool        `json:"ok"`
	Result      interface{} `json:"result,omitempty"`
	ErrorCode   int         `json:"error_code,omitempty"`
	Description string      `json:"description,omitempty"`
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(config Config, logger *log.Logger) *TelegramBot {
	cooldownPeriod := time.Duration(config.CooldownSeconds) * time.Second
	if cooldownPeriod == 0 {
		cooldownPeriod = 30 * time.Second // Default 30 seconds cooldown
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &TelegramBot{
		botToken:       config.BotToken,
		chatID:         config.ChatID,
		apiBase:        "https://api.telegram.org",
		enabled:        config.Enabled,
		logger:         logger,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		cooldownPeriod: cooldownPeriod,
	}
}

// ValidateConfig validates the Telegram bot configuration
func ValidateConfig(config Config) error {
	if config.Enabled {
		if config.BotToken == "" {
			return fmt.Errorf("telegram bot token is required when enabled")
		}
		if config.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when enabled")
		}
	}
	if config.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown seconds cannot be negative")
	}
	return nil
}

// IsEnabled returns whether the bot is enabled
func (tb *TelegramBot) IsEnabled() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.enabled
}

// SetEnabled enables or disables the bot
func (tb *TelegramBot) SetEnabled(enabled bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.enabled = enabled
}

// SendMessage sends a text message
func (tb *TelegramBot) SendMessage(ctx context.Context, message string) error {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	if !tb.enabled {
		return fmt.Errorf("telegram bot is disabled")
	}
	if tb.botToken == "" || tb.chatID == "" {
		return fmt.Errorf("telegram bot token or chat ID not configured")
	}

	payload := map[string]interface{}{
		"chat_id":    tb.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}
	return tb.sendTelegramRequest(ctx, "sendMessage", payload)
}

// SendMotionAlert sends an alert describing a trigger event. Alerts inside
// the bot's own cooldown window are skipped so a busy night does not flood
// the chat.
func (tb *TelegramBot) SendMotionAlert(ctx context.Context, event sink.Event) error {
	tb.mu.Lock()
	if time.Since(tb.lastAlert) < tb.cooldownPeriod {
		tb.mu.Unlock()
		return nil
	}
	tb.lastAlert = time.Now()
	tb.mu.Unlock()

	zoneName, _ := event.Timestamp.Zone()
	timestamp := fmt.Sprintf("%s %s", event.Timestamp.Format("2 Jan 2006, 15:04:05"), zoneName)

	message := fmt.Sprintf(
		"🚨 <b>Motion Alert!</b>\n\n"+
			"📐 Area: %d px in %d region(s)\n"+
			"🕐 Time: %s",
		event.TotalArea,
		len(event.Regions),
		timestamp,
	)
	return tb.SendMessage(ctx, message)
}

// SendTestMessage sends a test message to verify the bot configuration
func (tb *TelegramBot) SendTestMessage(ctx context.Context) error {
	now := time.Now()
	zoneName, _ := now.Zone()
	timestamp := fmt.Sprintf("%s %s", now.Format("2 Jan 2006, 15:04:05"), zoneName)

	message := fmt.Sprintf(
		"🤖 <b>Scarecrow Test Message</b>\n\n"+
			"✅ Telegram bot is working correctly!\n"+
			"🕐 Test sent at: %s",
		timestamp,
	)
	return tb.SendMessage(ctx, message)
}

// Fire implements sink.Sink.
func (tb *TelegramBot) Fire(event sink.Event) {
	if !tb.IsEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tb.SendMotionAlert(ctx, event); err != nil {
		tb.logger.Printf("[Telegram] failed to send alert for event %s: %v", event.ID, err)
	}
}

// sendTelegramRequest sends a generic request to Telegram API
func (tb *TelegramBot) sendTelegramRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", tb.apiBase, tb.botToken, method)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return tb.handleResponse(resp)
}

// handleResponse processes the Telegram API response
func (tb *TelegramBot) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp TelegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return nil
}

// GetBotInfo retrieves information about the bot
func (tb *TelegramBot) GetBotInfo(ctx context.Context) (map[string]interface{}, error) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	if tb.botToken == "" {
		return nil, fmt.Errorf("bot token not configured")
	}

	url := fmt.Sprintf("%s/bot%s/getMe", tb.apiBase, tb.botToken)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp TelegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !telegramResp.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}

	if result, ok := telegramResp.Result.(map[string]interface{}); ok {
		return result, nil
	}
	return nil, fmt.Errorf("unexpected response format")
}
