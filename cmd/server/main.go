package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"governa.ai/boardroom/internal/api"
	"governa.ai/boardroom/internal/auth"
	"governa.ai/boardroom/internal/config"
	"governa.ai/boardroom/internal/core"
	"governa.ai/boardroom/internal/logging"
	"governa.ai/boardroom/internal/provider"
	"governa.ai/boardroom/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "boardroom",
		Usage: "Knowledge-grounded voice and text assistant for board documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Before: loadConfig,
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serveCommand,
			},
			{
				Name:   "reconcile",
				Usage:  "Delete provider files left behind by failed ingestions and exit",
				Action: reconcileCommand,
			},
			{
				Name:   "create-assistant",
				Usage:  "Create a file-search assistant bound to VECTOR_STORE_ID and print its id",
				Action: createAssistantCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Assistant name",
						Value: "Boardroom Assistant",
					},
					&cli.StringFlag{
						Name:  "instructions",
						Usage: "Assistant instructions",
						Value: "You answer questions about the board's documents. Use the file search tool and answer concisely.",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Model name (defaults to ASSISTANT_MODEL)",
					},
				},
			},
			{
				Name:   "mint-token",
				Usage:  "Print an admin token for the knowledge base routes",
				Action: mintTokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "subject",
						Usage: "Token subject",
						Value: "admin",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: auth.DefaultTokenTTL,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) error {
	cfg := config.LoadConfig()
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return nil
}

func newProviderClient(cfg *config.Config, logger *zap.Logger) *provider.Client {
	return provider.NewClient(cfg.OpenAIAPIKey,
		provider.WithBaseURL(cfg.ProviderBaseURL),
		provider.WithTimeout(cfg.ProviderTimeout),
		provider.WithRateLimit(cfg.ProviderRPS),
		provider.WithLogger(logger),
	)
}

func serveCommand(c *cli.Context) error {
	cfg := &config.AppConfig
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	client := newProviderClient(cfg, logger)

	session := core.NewConversationSession(dbStore, client, cfg.VectorStoreID, logger)
	conversation := core.NewConversationService(session, client, core.ConversationConfig{
		AssistantID:     cfg.AssistantID,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		RunTimeout:      cfg.RunTimeout,
		ReplyLookback:   cfg.ReplyLookback,
	}, logger)

	knowledge, err := core.NewKnowledgeService(dbStore, client, session, core.KnowledgeConfig{
		VectorStoreID:     cfg.VectorStoreID,
		UploadDir:         cfg.UploadDir,
		Workers:           cfg.UploadWorkers,
		IndexPollAttempts: cfg.IndexPollAttempts,
		IndexPollInterval: time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize knowledge service: %w", err)
	}
	defer knowledge.Release()

	artifacts, err := core.NewArtifactStore(cfg.AudioDir, cfg.AudioRetention, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audio store: %w", err)
	}
	audio := core.NewAudioService(client, artifacts, dbStore, core.AudioConfig{
		TranscriptionModel:    cfg.TranscriptionModel,
		TranscriptionLanguage: cfg.TranscriptionLanguage,
		SpeechModel:           cfg.SpeechModel,
		SpeechVoice:           cfg.SpeechVoice,
		SpeechInstructions:    cfg.SpeechInstructions,
		VoiceLogUser:          cfg.VoiceLogUser,
	}, logger)

	if cfg.ReconcileInterval > 0 {
		scheduler, err := core.NewReconciler(dbStore, client, logger).Schedule(cfg.ReconcileInterval)
		if err != nil {
			return err
		}
		defer scheduler.Shutdown()
	}

	apiHandler := api.NewAPIHandler(conversation, knowledge, audio, logger, api.WithAdminSecret(cfg.JWTSecret))
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// A voice exchange may queue behind another run, then transcribe,
		// run and synthesize.
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr), zap.Bool("admin_auth", cfg.JWTSecret != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	}
	logger.Info("shutting down server")

	// Give in-flight runs time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

// writeTimeout covers the longest request: one run's worth of waiting for
// the session, its own run, and two plain provider calls.
func writeTimeout(cfg *config.Config) time.Duration {
	return 2*cfg.RunTimeout + 2*cfg.ProviderTimeout
}

func reconcileCommand(c *cli.Context) error {
	cfg := &config.AppConfig
	if cfg.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	report, err := core.NewReconciler(dbStore, newProviderClient(cfg, logger), logger).Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("checked=%d deleted=%d failed=%d\n", report.Checked, report.Deleted, report.Failed)
	return nil
}

func createAssistantCommand(c *cli.Context) error {
	cfg := &config.AppConfig
	if cfg.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	if cfg.VectorStoreID == "" {
		return errors.New("VECTOR_STORE_ID environment variable is required")
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	model := c.String("model")
	if model == "" {
		model = cfg.AssistantModel
	}

	assistant, err := newProviderClient(cfg, logger).CreateAssistant(c.Context, provider.CreateAssistantRequest{
		Name:           c.String("name"),
		Instructions:   c.String("instructions"),
		Model:          model,
		VectorStoreIDs: []string{cfg.VectorStoreID},
	})
	if err != nil {
		return err
	}
	fmt.Println(assistant.ID)
	return nil
}

func mintTokenCommand(c *cli.Context) error {
	token, err := auth.GenerateJWT(config.AppConfig.JWTSecret, c.String("subject"), c.Duration("ttl"))
	if err != nil {
		return fmt.Errorf("JWT_SECRET must be set to mint tokens: %w", err)
	}
	fmt.Println(token)
	return nil
}
