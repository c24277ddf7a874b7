package repo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

// commitSHARe is a loose syntactic check so obviously malformed refs are
// rejected before git is invoked.
var commitSHARe = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// Manager materializes a project repository inside the shared git workspace
// and moves it to the requested state.
type Manager struct {
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Checkout clones repoURL into gitWorkspace/<repoName> and checks out either
// the pull request ref (when prRef is non-empty) or the commit SHA. Returns
// the local repository path.
func (m *Manager) Checkout(ctx context.Context, repoURL, gitWorkspace, repoName, commitSHA, prRef string) (string, error) {
	repoDir := filepath.Join(gitWorkspace, repoName)

	// A stale checkout from a previous run cannot be trusted, start clean.
	if err := os.RemoveAll(repoDir); err != nil {
		return "", fmt.Errorf("failed to clear repo directory: %w", err)
	}
	if err := m.runGit(ctx, "", "clone", repoURL, repoDir); err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}

	if prRef != "" {
		if err := m.checkoutPullRequest(ctx, repoDir, prRef); err != nil {
			return "", err
		}
		return repoDir, nil
	}
	if err := m.checkoutCommit(ctx, repoDir, commitSHA); err != nil {
		return "", err
	}
	return repoDir, nil
}

func (m *Manager) checkoutCommit(ctx context.Context, repoDir, commitSHA string) error {
	if !commitSHARe.MatchString(commitSHA) {
		return fmt.Errorf("invalid commit SHA %q", commitSHA)
	}
	// cat-file confirms the object exists locally before we force-switch
	if err := m.runGit(ctx, repoDir, "cat-file", "-e", commitSHA); err != nil {
		return fmt.Errorf("commit %s not found in repository: %w", commitSHA, err)
	}
	if err := m.runGit(ctx, repoDir, "checkout", "-f", commitSHA); err != nil {
		return fmt.Errorf("failed to checkout commit %s: %w", commitSHA, err)
	}
	return nil
}

func (m *Manager) checkoutPullRequest(ctx context.Context, repoDir, prRef string) error {
	if prRef == "" {
		return fmt.Errorf("empty pull request ref")
	}
	if err := m.runGit(ctx, repoDir, "fetch", "origin", prRef); err != nil {
		return fmt.Errorf("failed to fetch pull request ref %s: %w", prRef, err)
	}
	if err := m.runGit(ctx, repoDir, "checkout", "-f", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("failed to checkout pull request ref %s: %w", prRef, err)
	}
	return nil
}

func (m *Manager) runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	m.logger.Debug("running git command", zap.String("command", cmd.String()))
	return cmd.Run()
}
