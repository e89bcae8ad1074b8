package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scarecrow/internal/sink"
)

func newTestBot(t *testing.T, handler http.HandlerFunc) *TelegramBot {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	bot := NewTelegramBot(Config{
		BotToken: "test-token",
		ChatID:   "42",
		Enabled:  true,
	}, nil)
	bot.apiBase = srv.URL
	return bot
}

func TestValidateConfig(t *testing.T) {
	assert.Error(t, ValidateConfig(Config{Enabled: true}))
	assert.Error(t, ValidateConfig(Config{Enabled: true, BotToken: "t"}))
	assert.Error(t, ValidateConfig(Config{CooldownSeconds: -1}))
	assert.NoError(t, ValidateConfig(Config{Enabled: true, BotToken: "t", ChatID: "c"}))
	assert.NoError(t, ValidateConfig(Config{Enabled: false}))
}

func TestSendMotionAlert(t *testing.T) {
	var got map[string]interface{}
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(TelegramResponse{OK: true})
	})

	err := bot.SendMotionAlert(context.Background(), sink.Event{
		ID:        "evt-1",
		Timestamp: time.Now(),
		TotalArea: 850,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", got["chat_id"])
	assert.Contains(t, got["text"], "850")
}

func TestSendMotionAlertHonorsCooldown(t *testing.T) {
	calls := 0
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(TelegramResponse{OK: true})
	})

	ev := sink.Event{ID: "evt", Timestamp: time.Now()}
	require.NoError(t, bot.SendMotionAlert(context.Background(), ev))
	require.NoError(t, bot.SendMotionAlert(context.Background(), ev))
	assert.Equal(t, 1, calls)
}

func TestSendMessageDisabled(t *testing.T) {
	bot := NewTelegramBot(Config{BotToken: "t", ChatID: "c", Enabled: false}, nil)
	err := bot.SendMessage(context.Background(), "hi")
	assert.Error(t, err)
}

func TestFireDisabledIsNoop(t *testing.T) {
	called := false
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	bot.SetEnabled(false)
	bot.Fire(sink.Event{ID: "evt"})
	assert.False(t, called)
}

func TestSendTestMessage(t *testing.T) {
	var got map[string]interface{}
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(TelegramResponse{OK: true})
	})

	require.NoError(t, bot.SendTestMessage(context.Background()))
	assert.Contains(t, got["text"], "Test Message")
}

func TestGetBotInfo(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/getMe", r.URL.Path)
		json.NewEncoder(w).Encode(TelegramResponse{
			OK:     true,
			Result: map[string]interface{}{"username": "scarecrow_bot"},
		})
	})

	info, err := bot.GetBotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scarecrow_bot", info["username"])
}

func TestGetBotInfoBadToken(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TelegramResponse{OK: false, ErrorCode: 401, Description: "Unauthorized"})
	})
	_, err := bot.GetBotInfo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAPIErrorSurface(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TelegramResponse{OK: false, ErrorCode: 401, Description: "Unauthorized"})
	})
	err := bot.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
