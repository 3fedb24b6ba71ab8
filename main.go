// Command trivia-tender is the Twitch chat trivia bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations (optional; the bot
//     degrades to in-memory questions without a database).
//   - Maintains the IRC connection with reconnection and rate limiting.
//   - Dispatches chat commands to the trivia engine, leaderboard, and the
//     chat API collaborator.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/trivia-tender/bot"
	"github.com/onnwee/trivia-tender/config"
	"github.com/onnwee/trivia-tender/db"
	"github.com/onnwee/trivia-tender/irc"
	"github.com/onnwee/trivia-tender/leaderboard"
	"github.com/onnwee/trivia-tender/llm"
	"github.com/onnwee/trivia-tender/questions"
	"github.com/onnwee/trivia-tender/server"
	"github.com/onnwee/trivia-tender/telemetry"
	"github.com/onnwee/trivia-tender/trivia"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("chat credentials incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("trivia-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database is optional: without it the bot still plays trivia from the
	// in-memory and OpenTDB sources, but leaderboard commands report
	// unavailability and attempts are not persisted.
	database := openDatabase(ctx, cfg.DBDsn)
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	// Question sources keyed by the "!trivia <source>" argument.
	sources := map[string]trivia.QuestionSource{
		"general": &questions.OpenTDB{},
		"local":   questions.NewMemory(),
	}
	var store *db.AttemptStore
	var board *leaderboard.Board
	var recorder trivia.AttemptRecorder
	if database != nil {
		store = &db.AttemptStore{DB: database}
		board = leaderboard.New(store)
		recorder = store
		sources["bank"] = &questions.PG{DB: database}
		for _, ch := range cfg.TwitchChannels {
			if err := db.UpsertChannel(ctx, database, ch); err != nil {
				slog.Warn("channel registration failed", slog.String("channel", ch), slog.Any("err", err))
			}
		}
	} else {
		board = leaderboard.New(nil)
	}

	// IRC transport shared by the sender goroutine and command handlers.
	queue := irc.NewSendQueue(cfg.SendQueueDepth, cfg.MaxMessageLen)
	limiter := irc.NewRateLimiter(cfg.RateLimitBurst, cfg.RateLimitWindow)
	conn := irc.NewConn(irc.Options{
		Addr:           cfg.IRCAddr,
		Nick:           cfg.TwitchBotUsername,
		Token:          cfg.TwitchOAuthToken,
		Channels:       cfg.TwitchChannels,
		ReconnectBase:  cfg.ReconnectBase,
		ReconnectCap:   cfg.ReconnectCap,
		LivenessWindow: cfg.LivenessWindow,
	}, queue, limiter)

	engine := trivia.NewEngine(trivia.Config{
		AutoNextDelay:  cfg.AutoNextDelay,
		FuzzyThreshold: cfg.FuzzyThreshold,
	}, sources, cfg.DefaultSource, conn.Say, recorder)
	defer engine.Shutdown()

	llmClient := llm.New(cfg.LLMAPIURL, cfg.LLMTimeout)
	b := bot.New(conn, engine, board, llmClient, bot.NewRouter(cfg.HandlerTimeout))
	conn.OnMessage(b.HandleMessage)

	connErr := make(chan error, 1)
	go func() { connErr <- conn.Run(ctx) }()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		status := &botStatus{conn: conn, engine: engine}
		if err := server.Start(ctx, database, status, llmClient, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("bot started",
		slog.String("nick", cfg.TwitchBotUsername),
		slog.Any("channels", cfg.TwitchChannels),
		slog.String("http_addr", addr))

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-connErr:
		if err != nil {
			// Fatal connection errors (bad credentials) are not retried.
			slog.Error("chat connection terminated", slog.Any("err", err))
			stop()
			os.Exit(1)
		}
	}
}

// setupLogging configures slog level and format from LOG_LEVEL / LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

// openDatabase connects and migrates, returning nil when either fails so the
// caller can degrade instead of crashing.
func openDatabase(ctx context.Context, dsn string) *sql.DB {
	database, err := db.Connect(dsn)
	if err != nil {
		slog.Warn("failed to open db, continuing without persistence", slog.Any("err", err))
		return nil
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(mctx, database); err != nil {
		slog.Warn("db migrate failed, continuing without persistence", slog.Any("err", err))
		if cerr := database.Close(); cerr != nil {
			slog.Warn("failed to close database", slog.Any("err", cerr))
		}
		return nil
	}
	return database
}

// botStatus adapts the connection and engine to the /status endpoint.
type botStatus struct {
	conn   *irc.Conn
	engine *trivia.Engine
}

func (s *botStatus) ConnState() string     { return s.conn.State().String() }
func (s *botStatus) RateUsage() (int, int) { return s.conn.RateUsage() }
func (s *botStatus) QueueDepth() int       { return s.conn.QueueDepth() }
func (s *botStatus) ActiveSessions() int   { return s.engine.ActiveCount() }
