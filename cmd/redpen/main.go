package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/ai"
	"github.com/xxxsen/redpen/internal/config"
	"github.com/xxxsen/redpen/internal/filestore"
	"github.com/xxxsen/redpen/internal/handler"
	"github.com/xxxsen/redpen/internal/job"
	"github.com/xxxsen/redpen/internal/middleware"
	"github.com/xxxsen/redpen/internal/schedule"
	"github.com/xxxsen/redpen/internal/service"
	"github.com/xxxsen/redpen/internal/store"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "redpen",
		Short: "redpen document review server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run redpen server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, db *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	kv := store.NewSQLiteKV(db)
	overlays := store.NewOverlayStore(kv, cfg.Overlay.MaxTrackedDocuments)

	var fileStore filestore.Store
	if cfg.FileStore.Type != "" {
		fs, err := filestore.New(cfg.FileStore)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
		fileStore = fs
	}

	documentService := service.NewDocumentService(cfg.DocumentSource, fileStore)
	autosave := service.NewDebouncer(time.Duration(cfg.Overlay.AutosaveDelayMS) * time.Millisecond)
	defer autosave.Stop()
	reviewService := service.NewReviewService(documentService, overlays, autosave, cfg.Render)

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	chatService := service.NewChatService(aiProvider, cfg.AI)

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(reviewService),
		State:     handler.NewStateHandler(reviewService, fileStore),
		Review:    handler.NewReviewHandler(reviewService),
		Chat:      handler.NewChatHandler(chatService, reviewService),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewOverlaySweepJob(overlays), cfg.Jobs.OverlaySweepSpec); err != nil {
		return fmt.Errorf("schedule overlay sweep: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
