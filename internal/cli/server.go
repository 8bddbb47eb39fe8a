package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pginfra "live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	// Session state prefers the durable backend: Postgres when configured,
	// then Redis, then process-local memory for development.
	var store app.Store
	switch {
	case pool != nil:
		strategy := pginfra.AnswerDirect
		if cfg.Store.AnswerWriter == "rpc" {
			strategy = pginfra.AnswerRPC
		}
		store = pginfra.NewStore(pool, strategy)
	case redisClient != nil:
		store = redisinfra.NewStore(redisClient, sessionTTL)
	default:
		store = memory.NewStore()
	}

	hostOpts := app.HostOptions{
		PollInterval:     config.TTLDuration(cfg.Game.PollInterval, time.Second),
		AutoAdvanceDelay: config.TTLDuration(cfg.Game.AutoAdvanceDelay, 3*time.Second),
		DefaultTimeLimit: cfg.Game.DefaultTimeLimit,
	}
	playerOpts := app.PlayerOptions{
		PollInterval:     hostOpts.PollInterval,
		DefaultTimeLimit: cfg.Game.DefaultTimeLimit,
	}

	registry := app.NewRegistry()
	hostHandler := transport.NewHostHandler(ctx, registry, store, quizRepo, hostOpts)
	wsHandler := transport.NewPlayerWSHandler(store, quizRepo, playerOpts)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	hostHandler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting live quiz service on :%s", finalPort)
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

// sampleQuizzes seeds the in-memory loader for development runs without
// Postgres; real deployments load quizzes from the quizzes table.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:                  "quiz-1",
			Title:               "Warmup",
			DefaultTimeLimitSec: 20,
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					CorrectOptionID: "o2",
					Points:          1,
				},
				{
					ID:   "q2",
					Text: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus"},
						{ID: "o2", Text: "Mars"},
						{ID: "o3", Text: "Jupiter"},
					},
					CorrectText:  "Mars",
					Points:       2,
					TimeLimitSec: 15,
				},
			},
		},
	}
}
