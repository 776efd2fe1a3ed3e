// Package indexer builds the semantic index for a staged repository
// checkout, either by shelling out to an external indexing command or with
// the built-in chunk-and-embed pipeline.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Runner indexes the repository checkout staged at path on behalf of repoID.
type Runner interface {
	Run(ctx context.Context, repoID int64, path string) error
}

// CommandRunner invokes an external indexing tool as a subprocess. The
// repository id and staging path are passed through the environment so the
// command line stays configuration.
type CommandRunner struct {
	command []string
	logger  *slog.Logger
}

// NewCommandRunner creates a runner for the given argv. The first element is
// the executable.
func NewCommandRunner(command []string, logger *slog.Logger) (*CommandRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("index command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRunner{command: command, logger: logger}, nil
}

func (r *CommandRunner) Run(ctx context.Context, repoID int64, path string) error {
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Env = append(os.Environ(),
		"REPO_ID="+strconv.FormatInt(repoID, 10),
		"REPO_PATH="+path,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if len(trimmed) > 2000 {
			trimmed = trimmed[:2000]
		}
		return fmt.Errorf("index command failed: %w: %s", err, trimmed)
	}

	r.logger.Info("index command completed", "repo_id", repoID, "path", path)
	return nil
}
