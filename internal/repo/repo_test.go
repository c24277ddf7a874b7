package repo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitOut(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=tester", "GIT_AUTHOR_EMAIL=tester@example.com",
		"GIT_COMMITTER_NAME=tester", "GIT_COMMITTER_EMAIL=tester@example.com")
	out, err := cmd.Output()
	require.NoError(t, err, "git %v", args)
	return strings.TrimSpace(string(out))
}

// initSourceRepo builds a two-commit repository and returns its path along
// with both commit SHAs, oldest first.
func initSourceRepo(t *testing.T) (string, string, string) {
	t.Helper()
	src := t.TempDir()
	gitOut(t, src, "init")

	require.NoError(t, os.WriteFile(filepath.Join(src, "data.txt"), []byte("v1"), 0644))
	gitOut(t, src, "add", "-A")
	gitOut(t, src, "commit", "-m", "first")
	first := gitOut(t, src, "rev-parse", "HEAD")

	require.NoError(t, os.WriteFile(filepath.Join(src, "data.txt"), []byte("v2"), 0644))
	gitOut(t, src, "add", "-A")
	gitOut(t, src, "commit", "-m", "second")
	second := gitOut(t, src, "rev-parse", "HEAD")

	return src, first, second
}

func TestCheckout_CommitSHA(t *testing.T) {
	requireGit(t)
	src, first, _ := initSourceRepo(t)
	workspace := t.TempDir()

	m := NewManager(zap.NewNop())
	repoDir, err := m.Checkout(context.Background(), src, workspace, "proj", first, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workspace, "proj"), repoDir)

	data, err := os.ReadFile(filepath.Join(repoDir, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data), "the older commit must be checked out")
}

func TestCheckout_PullRequestRef(t *testing.T) {
	requireGit(t)
	src, _, _ := initSourceRepo(t)
	gitOut(t, src, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(src, "data.txt"), []byte("v3"), 0644))
	gitOut(t, src, "add", "-A")
	gitOut(t, src, "commit", "-m", "feature work")

	workspace := t.TempDir()
	m := NewManager(zap.NewNop())
	repoDir, err := m.Checkout(context.Background(), src, workspace, "proj", "", "feature")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(repoDir, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(data))
}

func TestCheckout_MalformedSHARejected(t *testing.T) {
	requireGit(t)
	src, _, _ := initSourceRepo(t)

	m := NewManager(zap.NewNop())
	_, err := m.Checkout(context.Background(), src, t.TempDir(), "proj", "not-a-sha", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid commit SHA")
}

func TestCheckout_UnknownCommit(t *testing.T) {
	requireGit(t)
	src, _, _ := initSourceRepo(t)

	m := NewManager(zap.NewNop())
	_, err := m.Checkout(context.Background(), src, t.TempDir(), "proj", "deadbeefdeadbeef", "")
	assert.Error(t, err)
}

func TestCheckout_ReplacesStaleCheckout(t *testing.T) {
	requireGit(t)
	src, _, second := initSourceRepo(t)
	workspace := t.TempDir()

	staleDir := filepath.Join(workspace, "proj")
	require.NoError(t, os.MkdirAll(staleDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "leftover"), []byte("junk"), 0644))

	m := NewManager(zap.NewNop())
	repoDir, err := m.Checkout(context.Background(), src, workspace, "proj", second, "")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(repoDir, "leftover"))

	data, err := os.ReadFile(filepath.Join(repoDir, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
