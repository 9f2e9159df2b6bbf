package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kukicivan/ai-hub-sub002/internal/adapter"
	"github.com/kukicivan/ai-hub-sub002/internal/ai"
	"github.com/kukicivan/ai-hub-sub002/internal/api"
	"github.com/kukicivan/ai-hub-sub002/internal/auth"
	"github.com/kukicivan/ai-hub-sub002/internal/config"
	"github.com/kukicivan/ai-hub-sub002/internal/crypto"
	"github.com/kukicivan/ai-hub-sub002/internal/db"
	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("AIHUB_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.CloseConnection(pool)

	log.Info().Msg("connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create encryptor")
	}

	store := db.NewStore(pool)
	registry := adapter.NewRegistry()

	provider := newAdapterProvider(registry, encryptor)
	orchestrator := engine.NewOrchestrator(
		store, provider,
		cfg.SyncMaxAttempts, cfg.SyncBackoffBase, cfg.SyncInterval,
		log.With().Str("component", "orchestrator").Logger(),
	)

	scheduler := engine.NewScheduler(
		store, orchestrator, 30*time.Second,
		log.With().Str("component", "scheduler").Logger(),
	)
	go scheduler.Run(ctx)

	if cfg.OpenAIKey != "" {
		analyzer, err := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create AI client")
		}
		workerPool := ai.NewWorkerPool(store, analyzer, ai.WorkerPoolOptions{
			Workers:     cfg.AIWorkers,
			MaxAttempts: cfg.AIMaxAttempts,
			TokenBudget: cfg.AITokenBudget,
			BackoffBase: cfg.AIBackoffBase,
			ReapTimeout: cfg.AIReaperTimeout,
			Goals:       newGoalSource(pool, encryptor),
		}, log.With().Str("component", "ai").Logger())
		go workerPool.Run(ctx)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, AI processing disabled")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: NewServer(pool, encryptor, registry, orchestrator),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("addr", server.Addr).Str("environment", cfg.Environment).Msg("server starting")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// NewServer creates the HTTP handler for the API server.
func NewServer(pool *pgxpool.Pool, encryptor *crypto.Encryptor, registry *adapter.Registry, syncer api.SyncTrigger) http.Handler {
	channelsHandler := api.NewChannelsHandler(pool, encryptor, registry, syncer)
	threadsHandler := api.NewThreadsHandler(pool)
	messagesHandler := api.NewMessagesHandler(pool)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/channels", auth.RequireAuth(http.HandlerFunc(channelsHandler.HandleChannels)))
	mux.Handle("/api/v1/channels/", auth.RequireAuth(http.HandlerFunc(channelsHandler.HandleChannelAction)))
	mux.Handle("/api/v1/threads", auth.RequireAuth(http.HandlerFunc(threadsHandler.GetThreads)))
	mux.Handle("/api/v1/thread/", auth.RequireAuth(http.HandlerFunc(threadsHandler.GetThread)))
	mux.Handle("/api/v1/messages/", auth.RequireAuth(http.HandlerFunc(messagesHandler.HandleMessageAction)))

	return mux
}

// newAdapterProvider builds the production adapter provider: decrypt the
// channel's stored configuration and hand it to the registry.
func newAdapterProvider(registry *adapter.Registry, encryptor *crypto.Encryptor) engine.AdapterProvider {
	return func(_ context.Context, channel *models.Channel) (adapter.Adapter, error) {
		cfg, err := encryptor.DecryptConfig(channel.EncryptedConfig)
		if err != nil {
			return nil, &adapter.ConfigError{Reason: fmt.Sprintf("failed to decrypt channel config: %v", err)}
		}
		return registry.New(channel, cfg)
	}
}

// newGoalSource resolves the user goals stored in a channel's configuration.
func newGoalSource(pool *pgxpool.Pool, encryptor *crypto.Encryptor) ai.GoalSource {
	return func(ctx context.Context, channelID string) []string {
		channel, err := db.GetChannel(ctx, pool, channelID)
		if err != nil {
			return nil
		}
		cfg, err := encryptor.DecryptConfig(channel.EncryptedConfig)
		if err != nil {
			return nil
		}
		return cfg.UserGoals
	}
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "AI Hub sync engine is running")
}
