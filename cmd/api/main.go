package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/config"
	"github.com/shinyyama/snaplist-backend/internal/db"
	"github.com/shinyyama/snaplist-backend/internal/logging"
	"github.com/shinyyama/snaplist-backend/internal/media"
	appmw "github.com/shinyyama/snaplist-backend/internal/middleware"
	"github.com/shinyyama/snaplist-backend/internal/repository"
	"github.com/shinyyama/snaplist-backend/internal/server"
	"github.com/shinyyama/snaplist-backend/internal/service"
	"github.com/shinyyama/snaplist-backend/internal/tasks"
)

// Set with -ldflags "-X main.gitSHA=... -X main.buildTime=...".
var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

const imageFetchTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	conn, err := db.Connect(&cfg.DBConfig)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	if err := db.Migrate(conn); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	verifier, err := appmw.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("firebase auth: %w", err)
	}

	genClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("genai client: %w", err)
	}
	analyzer := ai.NewGeminiListingClient(
		genClient.Models,
		ai.NewImageFetcher(imageFetchTimeout, cfg.MaxUploadBytes),
		ai.Options{
			Model:           cfg.GeminiModel,
			Temperature:     cfg.AITemperature,
			MaxOutputTokens: cfg.AIMaxOutputTokens,
			AttemptTimeout:  cfg.AIAttemptTimeout,
		},
	)

	tracker := tasks.New(ctx)

	// The memory backend serves its own signed URLs from this process.
	var mediaHandler http.Handler
	if h, ok := store.(http.Handler); ok {
		mediaHandler = h
	}

	itemRepo := repository.NewItemRepository(conn)
	imageRepo := repository.NewImageRepository(conn)
	draftRepo := repository.NewDraftRepository(conn)
	batchRepo := repository.NewIngestionRepository(conn)
	userRepo := repository.NewUserRepository(conn)

	srv := server.New(cfg, server.Deps{
		Items:     service.NewItemService(itemRepo, userRepo, store),
		Images:    service.NewImageService(itemRepo, imageRepo, store, cfg.SignedURLTTL),
		Ingestion: service.NewIngestionService(itemRepo, imageRepo, batchRepo, store, tracker, cfg.MaxUploadBytes),
		Analysis: service.NewAnalysisService(itemRepo, imageRepo, draftRepo, store, analyzer, service.AnalysisConfig{
			MaxAttempts:  cfg.AIMaxAttempts,
			BackoffBase:  cfg.AIBackoffBase,
			SignedURLTTL: cfg.SignedURLTTL,
		}),
		Drafts:   service.NewDraftService(draftRepo),
		Verifier: verifier,
		Tracker:  tracker,
		Media:    mediaHandler,
	}, gitSHA, buildTime)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		httpErr := srv.Shutdown(shutdownCtx)
		taskErr := tracker.Shutdown(shutdownCtx)
		if taskErr != nil {
			log.Warn().Err(taskErr).Msg("background tasks did not drain")
		}
		return httpErr
	})
	return g.Wait()
}

func newStore(ctx context.Context, cfg *config.Config) (media.Store, error) {
	switch cfg.StorageBackend {
	case "minio":
		return media.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.StorageBucket, cfg.MinioUseSSL)
	case "memory":
		log.Warn().Msg("using in-memory object storage; images are lost on restart")
		return media.NewMemoryStore(cfg.StorageBucket, cfg.MediaBaseURL), nil
	default:
		return media.NewGCSStore(ctx, cfg.StorageBucket, cfg.CredentialsFile)
	}
}
