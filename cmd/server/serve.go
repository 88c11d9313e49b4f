package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/config"
	"taamsimcha-backend/internal/database"
	"taamsimcha-backend/internal/handlers"
	"taamsimcha-backend/internal/llm"
	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/repository"
	"taamsimcha-backend/internal/router"
	"taamsimcha-backend/internal/services"
	"taamsimcha-backend/internal/storage"
	"taamsimcha-backend/internal/websocket"
	"taamsimcha-backend/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the email worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 1: Configuration and logging ────
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("starting Taam Simcha backend", zap.String("env", cfg.Env))

	// ──── Step 2: PostgreSQL ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := database.RunMigrations(ctx, pool, log); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// ──── Step 3: Redis ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL, cfg.EmailWorkers)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClients.Close()
	log.Info("redis connected")

	// ──── Step 4: LLM provider ────
	completer, llmCloser, err := llm.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	defer llmCloser.Close()

	// ──── Step 5: Image storage ────
	images, uploadDir, err := newImageStore(cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	log.Info("image storage ready", zap.String("type", cfg.StorageType))

	// ──── Repositories and services ────
	userRepo := repository.NewUserRepo(pool)
	recipeRepo := repository.NewRecipeRepo(pool)
	ratingRepo := repository.NewRatingRepo(pool)
	favoriteRepo := repository.NewFavoriteRepo(pool)
	commentRepo := repository.NewCommentRepo(pool)

	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	notifier := services.NewNotifier(redisClients.Queue, log)

	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth, notifier, cfg.FrontendURL, log)
	recipeService := services.NewRecipeService(recipeRepo, ratingRepo, userRepo, notifier, log)
	favoriteService := services.NewFavoriteService(favoriteRepo, recipeService)
	commentService := services.NewCommentService(commentRepo, recipeService, notifier, log)
	negotiator := services.NewNegotiator(completer, cfg.AIChatTimeout, log)
	generator := services.NewRecipeGenerator(completer, cfg.AIGenerateTimeout, log)

	// ──── Step 6: Email worker pool ────
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, log)
	pdfRenderer, err := services.NewPDFRenderer(cfg.PDFFontPath)
	if err != nil {
		return fmt.Errorf("pdf: %w", err)
	}
	workerPool := worker.NewPool(redisClients.Queue, emailService, recipeRepo, pdfRenderer, cfg.EmailWorkers, log)
	workerPool.Start()
	defer workerPool.Stop()

	// ──── Step 7: WebSocket hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, []string{cfg.FrontendURL}, log)
	defer wsHub.Close()

	authLimiter := middleware.NewRateLimiter(10, 10)
	defer authLimiter.Stop()
	aiLimiter := middleware.NewRateLimiter(cfg.AIRatePerMinute, max(cfg.AIRatePerMinute/4, 1))
	defer aiLimiter.Stop()

	// ──── Step 8: HTTP server ────
	handler := router.New(router.Deps{
		JWTAuth:      jwtAuth,
		AdminChecker: authService,
		AuthLimiter:  authLimiter,
		AILimiter:    aiLimiter,
		Auth:         handlers.NewAuthHandler(authService),
		Recipes:      handlers.NewRecipeHandler(recipeService, images, log),
		Favorites:    handlers.NewFavoriteHandler(favoriteService),
		Comments:     handlers.NewCommentHandler(commentService),
		AI:           handlers.NewAIHandler(negotiator, generator),
		WSHub:        wsHub,
		UploadDir:    uploadDir,
		FrontendURL:  cfg.FrontendURL,
		Logger:       log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AIChatTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr), zap.String("api", "/api/v1"), zap.String("ws", "/ws"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newImageStore(cfg *config.Config) (storage.ImageStore, string, error) {
	switch cfg.StorageType {
	case "s3":
		store, err := storage.NewS3Store(cfg.S3Region, cfg.S3Bucket, cfg.S3PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		store, err := storage.NewLocalStore(cfg.StoragePath, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	}
}
