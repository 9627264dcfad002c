// Package app assembles the service: configuration, clients, repos,
// services, handlers, and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mnemos-app/mnemos-backend/internal/data/db"
	entryrepo "github.com/mnemos-app/mnemos-backend/internal/data/repos/entries"
	userrepo "github.com/mnemos-app/mnemos-backend/internal/data/repos/user"
	"github.com/mnemos-app/mnemos-backend/internal/http/handlers"
	"github.com/mnemos-app/mnemos-backend/internal/linker"
	"github.com/mnemos-app/mnemos-backend/internal/observability"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/openai"
	"github.com/mnemos-app/mnemos-backend/internal/platform/redislock"
	"github.com/mnemos-app/mnemos-backend/internal/realtime"
	"github.com/mnemos-app/mnemos-backend/internal/search"
	"github.com/mnemos-app/mnemos-backend/internal/services"
)

const serviceName = "mnemos-backend"

type App struct {
	Config Config
	Log    *logger.Logger
	Router *gin.Engine

	database *db.Database
	searcher *search.Index
	redis    *redis.Client
	busStop  context.CancelFunc

	shutdownTracing func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, log)
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	database := db.New(log)
	gdb, err := database.Get()
	if err != nil {
		return nil, fmt.Errorf("database bootstrap: %w", err)
	}

	// A missing API key is a valid configuration: entries are still served,
	// they just stay unembedded and unjudged until the key appears.
	var aiClient openai.Client
	if openai.Configured() {
		aiClient, err = openai.NewClient(log)
		if err != nil {
			return nil, fmt.Errorf("openai bootstrap: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; embeddings and link judgments disabled")
	}

	vectors, err := resolveVectorIndex(cfg.VectorProvider, log)
	if err != nil {
		return nil, err
	}

	searcher, err := search.Open(cfg.SearchIndexPath, log)
	if err != nil {
		return nil, fmt.Errorf("search index bootstrap: %w", err)
	}

	hub := realtime.NewHub(log)
	var bus realtime.Bus = realtime.NewLocalBus(hub)
	var rdb *redis.Client
	var locker *redislock.Locker
	var busStop context.CancelFunc
	if cfg.RedisURL != "" {
		opts, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("redis bootstrap: %w", parseErr)
		}
		rdb = redis.NewClient(opts)
		redisBus := realtime.NewRedisBus(rdb, hub, log)
		bus = redisBus
		locker = redislock.New(rdb)

		var busCtx context.Context
		busCtx, busStop = context.WithCancel(context.Background())
		go redisBus.Run(busCtx)
	}

	users := userrepo.NewRepo(gdb, log)
	entriesRepo := entryrepo.NewRepo(gdb, log)

	candidates := linker.NewCandidateSearch(entriesRepo, vectors, log, cfg.Linker)
	judge := linker.NewRelevanceJudge(aiClient, log, cfg.Linker)
	graph := linker.NewGraphMaintainer(entriesRepo, log, cfg.Linker)
	detector := linker.NewContradictionDetector(entriesRepo, aiClient, log, cfg.Linker)
	autoLinker := linker.NewAutoLinker(entriesRepo, candidates, judge, graph, detector, log, cfg.Linker)
	sweep := linker.NewSweep(users, entriesRepo, aiClient, vectors, autoLinker, log, cfg.Linker)

	authService := services.NewAuthService(users, log, services.AuthConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		TokenTTL:  cfg.TokenTTL,
	})
	entryService := services.NewEntryService(
		entriesRepo, aiClient, vectors, searcher, autoLinker, graph, bus, log, cfg.Linker,
	)

	router := buildRouter(cfg, log, routerDeps{
		auth:   handlers.NewAuthHandler(authService),
		entry:  handlers.NewEntryHandler(entryService),
		sweep:  handlers.NewSweepHandler(sweep, locker, log),
		sse:    handlers.NewSSEHandler(hub),
		health: handlers.NewHealthHandler(),
		parser: authService,
	})

	return &App{
		Config:          cfg,
		Log:             log,
		Router:          router,
		database:        database,
		searcher:        searcher,
		redis:           rdb,
		busStop:         busStop,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Run serves HTTP until ctx is canceled, then drains connections.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Listening", "port", a.Config.Port, "mode", a.Config.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Close(shutdownCtx)
	return nil
}

func (a *App) Close(ctx context.Context) {
	if a.busStop != nil {
		a.busStop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn("Redis close failed", "error", err.Error())
		}
	}
	if a.searcher != nil {
		if err := a.searcher.Close(); err != nil {
			a.Log.Warn("Search index close failed", "error", err.Error())
		}
	}
	if err := a.database.Reset(); err != nil {
		a.Log.Warn("Database close failed", "error", err.Error())
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("Tracer shutdown failed", "error", err.Error())
		}
	}
	a.Log.Sync()
}
