package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"snapquiz-service/internal/app"
	"snapquiz-service/internal/config"
	"snapquiz-service/internal/genai"
	"snapquiz-service/internal/infra/memory"
	pgstore "snapquiz-service/internal/infra/postgres"
	redisstore "snapquiz-service/internal/infra/redis"
	sqlitestore "snapquiz-service/internal/infra/sqlite"
	"snapquiz-service/internal/pkg/logger"
	transport "snapquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	store, cleanup, err := buildHistoryStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	gen, err := genai.NewClient(genai.Options{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		Timeout: config.TimeoutDuration(cfg.OpenAI.Timeout, 90*time.Second),
	}, log)
	if err != nil {
		return err
	}

	controller := app.NewSessionController(store, gen, log)
	wsHandler := transport.NewWSHandler(controller, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting snapquiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildHistoryStore picks the persistence backend: postgres when configured
// (migrations applied first), then redis, then a local sqlite file, then
// process memory.
func buildHistoryStore(ctx context.Context, cfg config.Config, log *logger.Logger) (app.HistoryStore, func(), error) {
	noop := func() {}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return nil, noop, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, noop, err
		}
		return pgstore.NewHistoryStore(pool, cfg.History.Key, log), pool.Close, nil
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redisstore.NewHistoryStore(client, cfg.History.Key, log), func() { _ = client.Close() }, nil
	}

	if cfg.SQLite.Path != "" {
		store, err := sqlitestore.Open(ctx, cfg.SQLite.Path, cfg.History.Key, log)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	return memory.NewHistoryStore(log), noop, nil
}
