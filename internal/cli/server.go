package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-admin-service/internal/app"
	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/config"
	"quiz-admin-service/internal/infra/memory"
	"quiz-admin-service/internal/infra/postgres"
	redisinfra "quiz-admin-service/internal/infra/redis"
	transport "quiz-admin-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz admin server",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	policy := authz.Default()
	audit := authz.NewAuditLogger(logrus.StandardLogger())

	// Principal provisioning runs through the principals CLI command; the
	// server itself only serves the gated CRUD surface.
	var store app.Store
	var scoreboardLoader redisinfra.ScoreboardLoader
	if cfg.Postgres.URL != "" {
		db := openBunDB(cfg.Postgres.URL)
		defer db.Close()

		pgStore := postgres.NewStore(db, policy, audit)
		store = pgStore
		scoreboardLoader = pgStore
	} else {
		// Postgres-free mode for demos and local hacking.
		memStore := memory.NewStore(policy, audit)
		store = memStore
		scoreboardLoader = memStore
	}

	scoreboardTTL := config.TTLDuration(cfg.Scoreboard.TTL, time.Minute)
	var scoreboard app.ScoreboardRepository
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		scoreboard = redisinfra.NewScoreboardRepository(redisClient, scoreboardLoader, scoreboardTTL)
	} else {
		scoreboard = memory.NewScoreboardRepository(scoreboardLoader, scoreboardTTL)
	}

	service := app.NewAdminService(store, scoreboard)
	handler := transport.NewHandler(service)
	pushInterval := config.TTLDuration(cfg.Scoreboard.PushInterval, 2*time.Second)
	wsHandler := transport.NewScoreboardWSHandler(service, pushInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("GET /ws/quizzes/{quizID}/scoreboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz admin service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
