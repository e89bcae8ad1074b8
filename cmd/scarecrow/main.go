package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"scarecrow/internal/api"
	"scarecrow/internal/auth"
	"scarecrow/internal/database"
	"scarecrow/internal/detector"
	"scarecrow/internal/sink"
	"scarecrow/internal/telegram"
	"scarecrow/internal/ws"
)

func main() {
	// Define command line flags, add any other flag required to configure
	// the service.
	var (
		hostF     = flag.String("host", "0.0.0.0", "Server host")
		httpPortF = flag.String("http-port", "8080", "HTTP port")
		dbPathF   = flag.String("db", "scarecrow.db", "Path to the SQLite event log")
		soundF    = flag.String("sound", "", "Sound file or directory of sounds to play on trigger")
		playerF   = flag.String("player", "aplay", "Playback command (aplay or ffplay)")
		streamF   = flag.String("stream", "", "Camera stream URL to monitor at startup")
		historyF  = flag.Int("history", 0, "Background model history in frames (0 = default)")
		queueF    = flag.Int("sink-queue", 16, "Trigger dispatch queue depth")
		keepF     = flag.Duration("keep-events", 0, "Delete logged events older than this (0 = keep forever)")
	)
	flag.Parse()

	// Setup logger. Replace logger with your own log package of choice.
	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[scarecrow] ", log.Ltime)
	}

	// Open the event log.
	db, err := database.New(*dbPathF, logger)
	if err != nil {
		logger.Fatalf("failed to open event log: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("failed to migrate event log: %v", err)
	}

	// WebSocket hub for live observation.
	hub := ws.NewHub(logger)

	// Assemble the trigger sinks. Everything downstream of the detector is
	// asynchronous so a slow sink never stalls frame analysis.
	sinks := sink.Multi{
		db,
		hub,
		sink.NewPlayer(*playerF, *soundF, logger),
	}

	telegramCfg := telegram.Config{
		BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		Enabled:  os.Getenv("TELEGRAM_ENABLED") == "true",
	}
	if err := telegram.ValidateConfig(telegramCfg); err != nil {
		logger.Fatalf("invalid telegram config: %v", err)
	}
	if telegramCfg.Enabled {
		bot := telegram.NewTelegramBot(telegramCfg, logger)
		verifyTelegramBot(bot, logger)
		sinks = append(sinks, bot)
		logger.Printf("telegram alerts enabled")
	}

	dispatcher := sink.NewAsync(sinks, *queueF, logger)
	defer dispatcher.Close()

	// Detection controller.
	ctrl, err := detector.New(detector.Config{
		History: *historyF,
		Logger:  logger,
		Sink:    dispatcher,
	})
	if err != nil {
		logger.Fatalf("failed to create detector: %v", err)
	}

	// Authentication for the control API.
	authn := auth.NewAuthenticator(auth.ConfigFromEnv(), auth.NewJWTManagerFromEnv())
	if authn.IsEnabled() {
		logger.Printf("API authentication enabled")
	}

	server := api.NewServer(ctrl, db, authn, ws.NewHandler(hub), logger)

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	addr := net.JoinHostPort(*hostF, *httpPortF)
	handleHTTPServer(ctx, addr, server.Handler(), &wg, errc, logger)

	// Push detector state changes to WebSocket subscribers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchState(ctx, ctrl, hub)
	}()

	if *keepF > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneEvents(ctx, db, *keepF, logger)
		}()
	}

	if *streamF != "" {
		if err := ctrl.Start(*streamF); err != nil {
			logger.Fatalf("failed to start monitoring %s: %v", *streamF, err)
		}
	}

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	if ctrl.State() != detector.StateIdle {
		if err := ctrl.Stop(); err != nil {
			logger.Printf("failed to stop detector: %v", err)
		}
	}

	wg.Wait()
	logger.Println("exited")
}

// verifyTelegramBot checks the bot credentials against the API at startup.
// A failure is logged but not fatal, Telegram being down should not keep the
// detector offline. Set TELEGRAM_SEND_TEST=true to also push a test message
// to the configured chat.
func verifyTelegramBot(bot *telegram.TelegramBot, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := bot.GetBotInfo(ctx)
	if err != nil {
		logger.Printf("telegram bot verification failed: %v", err)
		return
	}
	if username, ok := info["username"].(string); ok {
		logger.Printf("telegram bot @%s verified", username)
	}

	if os.Getenv("TELEGRAM_SEND_TEST") == "true" {
		if err := bot.SendTestMessage(ctx); err != nil {
			logger.Printf("telegram test message failed: %v", err)
		}
	}
}

// pruneEvents periodically deletes logged events older than the retention
// window.
func pruneEvents(ctx context.Context, db *database.Database, keep time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PruneBefore(time.Now().Add(-keep))
			if err != nil {
				logger.Printf("failed to prune event log: %v", err)
			} else if n > 0 {
				logger.Printf("pruned %d expired events", n)
			}
		}
	}
}

// watchState polls the controller and broadcasts state transitions.
func watchState(ctx context.Context, ctrl *detector.Controller, hub *ws.Hub) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := ctrl.State()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if state := ctrl.State(); state != last {
				last = state
				hub.BroadcastState(string(state))
			}
		}
	}
}
