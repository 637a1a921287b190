// Package runner implements the worker side of the pipeline: it accepts one
// job at a time, materializes the commit, runs the repository's suite, and
// reports per-test results back to the dispatcher.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/gitutil"
)

// Executor materializes a commit into a cached working copy and runs its
// suite there.
type Executor struct {
	git     *gitutil.Client
	workDir string
	logger  *slog.Logger
}

// NewExecutor creates an executor that keeps its working copies under
// workDir, one directory per repository.
func NewExecutor(git *gitutil.Client, workDir string, logger *slog.Logger) *Executor {
	return &Executor{git: git, workDir: workDir, logger: logger}
}

// Run checks out the assignment's commit and runs the suite. The error return
// is reserved for infrastructure failures where the suite never ran; anything
// the suite itself says, including a broken build, comes back as results.
func (e *Executor) Run(ctx context.Context, a core.Assignment) ([]core.Result, error) {
	path := filepath.Join(e.workDir, gitutil.CacheDirName(a.RepoURL))
	if err := e.git.Sync(ctx, a.RepoURL, path, a.CommitID); err != nil {
		return nil, fmt.Errorf("failed to materialize commit %s: %w", a.CommitID, err)
	}

	repoCfg, err := config.LoadRepoConfig(path)
	if errors.Is(err, config.ErrRepoConfigNotFound) {
		e.logger.Debug("repository carries no .testherd.yml, using defaults", "repo", a.RepoURL)
	} else if errors.Is(err, config.ErrRepoConfigParsing) {
		// A broken .testherd.yml is deterministic; retrying on another worker
		// would waste the attempt budget.
		return []core.Result{{
			TestName: ".testherd.yml",
			Kind:     core.ResultError,
			Reasons:  []string{err.Error()},
		}}, nil
	} else if err != nil {
		return nil, err
	}

	return e.runSuite(ctx, filepath.Join(path, repoCfg.Dir), repoCfg, a)
}

func (e *Executor) runSuite(ctx context.Context, dir string, repoCfg *config.RepoConfig, a core.Assignment) ([]core.Result, error) {
	e.logger.Info("running suite",
		"commit", a.CommitID,
		"command", strings.Join(repoCfg.TestCommand, " "),
		"dir", dir,
	)

	cmd := exec.CommandContext(ctx, repoCfg.TestCommand[0], repoCfg.TestCommand[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("suite aborted: %w", ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The command never started, so nothing was actually tested.
			return nil, fmt.Errorf("failed to start suite command: %w", runErr)
		}
	}

	if repoCfg.Format == "exit-code" {
		return parseExitCode(outputLines(&stdout, &stderr), runErr), nil
	}

	results, err := parseGoTestJSON(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse suite output: %w", err)
	}
	if len(results) == 0 && runErr != nil {
		// The command failed before producing a single event.
		return []core.Result{{
			TestName: "suite",
			Kind:     core.ResultError,
			Reasons:  append(outputLines(&stdout, &stderr), runErr.Error()),
		}}, nil
	}
	return results, nil
}

func outputLines(stdout, stderr *bytes.Buffer) []string {
	var lines []string
	for _, buf := range []*bytes.Buffer{stdout, stderr} {
		for _, line := range strings.Split(buf.String(), "\n") {
			if line = strings.TrimRight(line, "\r"); line != "" {
				lines = append(lines, line)
			}
		}
	}
	if len(lines) > maxReasonLines {
		lines = lines[len(lines)-maxReasonLines:]
	}
	return lines
}
