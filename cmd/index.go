package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/manicule/manicule/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index <login>",
	Short: "Index an account's source repository from the command line",
	Long: `Enqueues an indexing job for the given installation account and runs
the worker inline until the job finishes. The account must have exactly
one repository marked HYBRID, or a MAIN and a DOCS pair.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

// statusSteps maps index states to progress bar positions.
var statusSteps = map[store.IndexStatus]int{
	store.StatusNone:        0,
	store.StatusDownloading: 1,
	store.StatusDownloaded:  2,
	store.StatusIndexing:    3,
	store.StatusCompleted:   4,
}

func runIndex(cmd *cobra.Command, args []string) error {
	login := args[0]
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
		return fmt.Errorf("indexing requires github.app_id and a private key")
	}

	owner, err := c.Store.GetOwnerByLogin(login)
	if err != nil {
		return fmt.Errorf("unknown account %q: install the GitHub App first", login)
	}

	repos, err := c.Store.ListRepositories(owner.ID)
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}

	repo, hybrid, ok := pickIndexable(repos)
	if !ok {
		return fmt.Errorf("mark exactly one repository as MAIN and one as DOCS")
	}

	pool, err := createWorkerPool(c)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	job, err := c.Queue.Enqueue(repo, owner.InstallationID, cfg.Indexing.MaxAttempts, hybrid)
	if err != nil {
		return fmt.Errorf("enqueueing indexing job: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexing %s/%s (job %s)\n", repo.Owner, repo.Name, job.ID)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	err = waitForIndex(ctx, c.Store, repo.ID)
	cancel()
	<-poolDone
	return err
}

// waitForIndex polls the repository's index status until it reaches a
// terminal state, rendering a progress bar along the way.
func waitForIndex(ctx context.Context, db *store.DB, repoID int64) error {
	bar := newProgressBar(len(statusSteps)-1, "indexing", os.Stderr)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return ctx.Err()
		case <-ticker.C:
		}

		repo, err := db.GetRepository(repoID)
		if err != nil {
			fmt.Fprintln(os.Stderr)
			return fmt.Errorf("reading repository status: %w", err)
		}

		switch repo.IndexStatus {
		case store.StatusCompleted:
			bar.Finish()
			fmt.Fprintln(os.Stderr, "Indexing completed")
			return nil
		case store.StatusFailed:
			active, err := db.HasActiveJob(repoID)
			if err != nil {
				fmt.Fprintln(os.Stderr)
				return fmt.Errorf("reading job status: %w", err)
			}
			if !active {
				fmt.Fprintln(os.Stderr)
				return fmt.Errorf("indexing failed: %s", repo.ErrorMessage)
			}
			// A retry is still scheduled. Keep waiting.
		default:
			if step := statusSteps[repo.IndexStatus]; step > last {
				bar.Add(step - last)
				last = step
			}
		}
	}
}

// pickIndexable selects the repository to index from the account's role
// configuration: one HYBRID, or the MAIN of a MAIN+DOCS pair.
func pickIndexable(repos []store.Repository) (*store.Repository, bool, bool) {
	var mains, docs, hybrids []store.Repository
	for _, r := range repos {
		switch r.Role {
		case store.RoleMain:
			mains = append(mains, r)
		case store.RoleDocs:
			docs = append(docs, r)
		case store.RoleHybrid:
			hybrids = append(hybrids, r)
		}
	}

	if len(hybrids) == 1 && len(mains) == 0 && len(docs) == 0 {
		return &hybrids[0], true, true
	}
	if len(mains) == 1 && len(docs) == 1 && len(hybrids) == 0 {
		return &mains[0], false, true
	}
	return nil, false, false
}
