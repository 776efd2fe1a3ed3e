// Package cmd implements the manicule command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/manicule/manicule/internal/classify"
	"github.com/manicule/manicule/internal/config"
	"github.com/manicule/manicule/internal/generate"
	"github.com/manicule/manicule/internal/ghapp"
	"github.com/manicule/manicule/internal/indexer"
	"github.com/manicule/manicule/internal/notify"
	"github.com/manicule/manicule/internal/provider"
	"github.com/manicule/manicule/internal/pubsub"
	"github.com/manicule/manicule/internal/publish"
	"github.com/manicule/manicule/internal/queue"
	"github.com/manicule/manicule/internal/retrieve"
	"github.com/manicule/manicule/internal/store"
	"github.com/manicule/manicule/internal/target"
	"github.com/manicule/manicule/internal/webhook"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "manicule",
	Short: "Keep documentation in sync with code via GitHub App automation",
	Long: `Manicule receives GitHub pull request events, decides whether a change
affects documentation, and proposes documentation updates as pull
requests. It maintains a per-repository semantic code index to give the
generator real code context.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".manicule/config.yaml"
	}
	return home + "/.manicule/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config    *config.Config
	Store     *store.DB
	Factory   *ghapp.ClientFactory
	Embedder  provider.Embedder
	Completer provider.Completer
	Broker    *pubsub.Broker[store.IndexJob]
	Queue     *queue.Queue
	Notifier  notify.Notifier
	Logger    *slog.Logger
}

// initComponents creates the shared components from config.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db

	if cfg.GitHub.AppID != "" {
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		factory, err := ghapp.NewClientFactory(appID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub App client factory: %w", err)
		}
		c.Factory = factory
	}

	if cfg.Providers.Embedding.Type != "" {
		c.Embedder, err = provider.NewEmbedder(provider.EmbedderConfig{
			Type:   cfg.Providers.Embedding.Type,
			Model:  cfg.Providers.Embedding.Model,
			APIKey: cfg.Providers.Embedding.APIKey,
			URL:    cfg.Providers.Embedding.URL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
	}

	if cfg.Providers.LLM.Type != "" {
		c.Completer, err = provider.NewCompleter(provider.CompleterConfig{
			Type:   cfg.Providers.LLM.Type,
			Model:  cfg.Providers.LLM.Model,
			APIKey: cfg.Providers.LLM.APIKey,
			URL:    cfg.Providers.LLM.URL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
	}

	c.Broker = pubsub.NewBroker[store.IndexJob]()
	c.Queue = queue.NewQueue(db, c.Broker, logger)

	if cfg.Notify.SlackWebhook != "" || cfg.Notify.DiscordWebhook != "" {
		c.Notifier, err = notify.NewNotifier(cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
		if err != nil {
			return nil, fmt.Errorf("creating notifier: %w", err)
		}
	}

	return c, nil
}

// requestTimeout returns the configured provider timeout with a safe default.
func requestTimeout(cfg *config.Config) time.Duration {
	timeout, err := cfg.Pipeline.RequestTimeout()
	if err != nil || timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

// createPipeline wires the documentation pipeline from components.
func createPipeline(c *components) *webhook.Pipeline {
	timeout := requestTimeout(c.Config)

	classifier := classify.NewClassifier(c.Completer, timeout, c.Logger)
	retriever := retrieve.NewRetriever(c.Embedder, c.Store, c.Logger,
		retrieve.WithThreshold(float32(c.Config.Pipeline.SimilarityThreshold)),
		retrieve.WithTopK(c.Config.Pipeline.TopK),
		retrieve.WithTimeout(timeout))
	generator := generate.NewGenerator(c.Completer, timeout, c.Logger)
	resolver := target.NewResolver(c.Completer, timeout, c.Logger)
	gh := webhook.NewGitHub(c.Factory, publish.NewPublisher(c.Logger))

	return webhook.NewPipeline(gh, classifier, retriever, generator, resolver, c.Notifier,
		c.Config.Pipeline.ConfidenceThreshold, c.Logger)
}

// createIndexRunner picks the external index command when configured, and
// the built-in chunk-and-embed indexer otherwise.
func createIndexRunner(c *components) (indexer.Runner, error) {
	if len(c.Config.Indexing.IndexCommand) > 0 {
		return indexer.NewCommandRunner(c.Config.Indexing.IndexCommand, c.Logger)
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("indexing needs either an index_command or an embedding provider")
	}
	return indexer.NewEmbedRunner(c.Embedder, c.Store, c.Logger), nil
}

// createWorkerPool wires the indexing worker pool from components.
func createWorkerPool(c *components) (*queue.Pool, error) {
	runner, err := createIndexRunner(c)
	if err != nil {
		return nil, err
	}

	downloader := queue.NewGitHubDownloader(c.Factory, c.Config.Indexing.BaseDir,
		c.Config.Indexing.BlobConcurrency, c.Logger)

	pollInterval, err := c.Config.Indexing.PollInterval()
	if err != nil || pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}

	opts := []queue.PoolOption{
		queue.WithWorkers(c.Config.Indexing.Workers),
		queue.WithPollInterval(pollInterval),
	}
	if c.Notifier != nil {
		notifier := c.Notifier
		logger := c.Logger
		opts = append(opts, queue.WithDeadLetterFunc(func(job *store.IndexJob, lastError string) {
			event := notify.Event{
				Kind:  notify.IndexingFailed,
				Repo:  job.Owner + "/" + job.Repo,
				Error: lastError,
			}
			if err := notifier.Notify(context.Background(), event); err != nil {
				logger.Warn("dead letter notification failed", "error", err)
			}
		}))
	}

	return queue.NewPool(c.Store, downloader, runner, c.Broker, c.Logger, opts...), nil
}
