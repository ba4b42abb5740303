package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/getsentry/sentry-go"

	"github.com/danielhkuo/helpline-router/balancer"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/db"
	"github.com/danielhkuo/helpline-router/dispatch"
	"github.com/danielhkuo/helpline-router/machine"
	"github.com/danielhkuo/helpline-router/middleware"
	"github.com/danielhkuo/helpline-router/migration"
	"github.com/danielhkuo/helpline-router/relay"
	"github.com/danielhkuo/helpline-router/router"
	"github.com/danielhkuo/helpline-router/slackapi"
	"github.com/danielhkuo/helpline-router/twilioapi"
)

func setupLogging(cfg cliparse.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			slog.Error("sentry init failed", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()

	// Session cache
	var store cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		slog.Warn("REDIS_URL not set, sessions are kept in memory")
		store = cache.NewMemoryStore()
	}
	sessions := cache.NewSessions(store)

	// Durable log
	dbConn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)
	log := db.NewStore(dbConn)

	// Background work
	registry := dispatch.NewRegistry()
	var dispatcher dispatch.Dispatcher
	var inProcess *dispatch.InProcess
	if cfg.LambdaTaskFunction != "" {
		dispatcher, err = dispatch.NewLambdaFromEnv(ctx, cfg.LambdaTaskFunction)
		if err != nil {
			slog.Error("lambda dispatcher setup failed", "error", err)
			os.Exit(1)
		}
	} else {
		inProcess = dispatch.NewInProcess(registry)
		dispatcher = inProcess
	}

	// Helpline components
	chat := slackapi.New(cfg.SlackBotToken, cfg.SlackAdminChannelID)
	sms := twilioapi.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	rl := relay.New(sessions, log, chat, sms, cfg.TwilioCallbackURL)
	migrator := migration.New(sessions, log, rl, dispatcher)
	bal := balancer.New(store, log, nil)
	m := machine.New(machine.Config{
		Organization:       cfg.ClientOrganization,
		RequireDisclaimer:  cfg.RequireDisclaimer,
		DemoGatewayNumbers: cfg.DemoGatewayNumbers,
		DemoVoterNumbers:   cfg.DemoVoterNumbers,
		PushNumberRegions:  cfg.PushNumberRegions,
		AdminChannelID:     cfg.SlackAdminChannelID,
		BotUserID:          cfg.SlackBotUserID,
	}, sessions, log, rl, bal, migrator)
	m.RegisterTasks(registry)

	if cfg.Mode == cliparse.ModeWorker {
		slog.Info("Starting background worker")
		lambda.Start(registry.Handler())
		return
	}

	// Create router
	mux := router.NewRouter(cfg, router.Services{
		Inbound:    m,
		Relay:      rl,
		Weights:    bal,
		Stats:      log,
		Dispatcher: dispatcher,
	})

	// Create server
	server := http.Server{
		Handler:           middleware.WithRecovery(mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}

	// Let acknowledged chat events finish
	if inProcess != nil {
		inProcess.Wait()
	}
}
