package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/manicule/manicule/internal/store"
)

var statusJobsFlag bool

var statusCmd = &cobra.Command{
	Use:   "status [login]",
	Short: "Show tracked repositories and their index state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJobsFlag, "jobs", false, "also list indexing jobs")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	var owners []store.InstallationOwner
	if len(args) == 1 {
		owner, err := c.Store.GetOwnerByLogin(args[0])
		if err != nil {
			return fmt.Errorf("unknown account %q", args[0])
		}
		owners = append(owners, *owner)
	} else {
		owners, err = c.Store.ListOwners()
		if err != nil {
			return fmt.Errorf("listing accounts: %w", err)
		}
	}

	if len(owners) == 0 {
		fmt.Println("No installations found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tROLE\tINDEX STATUS\tLAST INDEXED\tERROR")
	for _, owner := range owners {
		repos, err := c.Store.ListRepositories(owner.ID)
		if err != nil {
			return fmt.Errorf("listing repositories for %s: %w", owner.Login, err)
		}
		for _, r := range repos {
			fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s\t%s\n",
				r.Owner, r.Name, orDash(string(r.Role)), orDash(string(r.IndexStatus)),
				formatIndexedAt(r.LastIndexedAt), orDash(r.ErrorMessage))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !statusJobsFlag {
		return nil
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tREPOSITORY\tSTATUS\tATTEMPTS\tRUN AFTER\tLAST ERROR")
	for _, status := range []store.JobStatus{store.JobPending, store.JobRunning, store.JobDone, store.JobDead} {
		jobs, err := c.Store.ListJobs(status)
		if err != nil {
			return fmt.Errorf("listing %s jobs: %w", status, err)
		}
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s/%s\t%s\t%d/%d\t%s\t%s\n",
				j.ID, j.Owner, j.Repo, j.Status, j.Attempts, j.MaxAttempts,
				j.RunAfter.Format(time.RFC3339), orDash(j.LastError))
		}
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatIndexedAt(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
