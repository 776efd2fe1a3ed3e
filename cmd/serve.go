package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and indexing workers",
	Long: `Starts the HTTP server that receives GitHub App webhook events and the
management API, plus the background worker pool that processes repository
indexing jobs. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	if c.Factory == nil {
		return fmt.Errorf("serve requires github.app_id and a private key")
	}
	if c.Completer == nil {
		return fmt.Errorf("serve requires an LLM provider")
	}
	if c.Embedder == nil {
		return fmt.Errorf("serve requires an embedding provider")
	}

	pool, err := createWorkerPool(c)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	server := webhook.NewServer(c.Store, c.Queue, createPipeline(c),
		ghapp.NewVerifier(cfg.Server.WebhookSecret), logger,
		webhook.WithDocsRoot(cfg.Indexing.DocsRoot),
		webhook.WithMaxAttempts(cfg.Indexing.MaxAttempts))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-serveErr:
		stop()
		<-poolDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		<-poolDone
		return nil
	}
}
