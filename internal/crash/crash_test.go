package crash

import (
	"cifuzz/config"
	"cifuzz/internal/types"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager() *Manager {
	cfg := &config.AppConfig{
		ProjectName:  "libpng",
		CommitSHA:    "0a1b2c3d",
		Sanitizer:    "address",
		FuzzEngine:   "libfuzzer",
		Architecture: "x86_64",
	}
	return NewManager(ManagerParams{
		Logger:    zap.NewNop(),
		Extractor: NewExtractor(zap.NewNop()),
		Config:    cfg,
	})
}

func writeCrashInput(t *testing.T, content string) string {
	t.Helper()
	crashInput := filepath.Join(t.TempDir(), "crash-5431")
	require.NoError(t, os.WriteFile(crashInput, []byte(content), 0644))
	return crashInput
}

func TestHandleCrash_ArchivesTestCaseAndSummary(t *testing.T) {
	artifactDir := filepath.Join(t.TempDir(), "artifacts")
	manager := newTestManager()

	crashInput := writeCrashInput(t, "bad-input")
	target := &types.FuzzTarget{Name: "png_read_fuzzer"}
	outcome := &types.RunOutcome{
		TestCase: crashInput,
		Output:   "AddressSanitizer: heap-buffer-overflow\nABORTING",
	}

	require.NoError(t, manager.HandleCrash(context.Background(), target, outcome, artifactDir))

	archived, err := os.ReadFile(filepath.Join(artifactDir, TestCaseFileName))
	require.NoError(t, err)
	assert.Equal(t, "bad-input", string(archived))
	assert.NoFileExists(t, crashInput, "the original test case must be moved, not copied")

	summary, err := os.ReadFile(filepath.Join(artifactDir, SummaryFileName))
	require.NoError(t, err)
	assert.Equal(t, "AddressSanitizer: heap-buffer-overflow\nABORTING", string(summary))
}

func TestHandleCrash_LastCrashWinsOnTestCase(t *testing.T) {
	artifactDir := filepath.Join(t.TempDir(), "artifacts")
	manager := newTestManager()
	target := &types.FuzzTarget{Name: "png_read_fuzzer"}

	first := &types.RunOutcome{
		TestCase: writeCrashInput(t, "first"),
		Output:   "LeakSanitizer: detected memory leaks\nABORTING",
	}
	second := &types.RunOutcome{
		TestCase: writeCrashInput(t, "second"),
		Output:   "MemorySanitizer: use-of-uninitialized-value\nABORTING",
	}

	require.NoError(t, manager.HandleCrash(context.Background(), target, first, artifactDir))
	require.NoError(t, manager.HandleCrash(context.Background(), target, second, artifactDir))

	archived, err := os.ReadFile(filepath.Join(artifactDir, TestCaseFileName))
	require.NoError(t, err)
	assert.Equal(t, "second", string(archived), "test_case is overwritten per crash")

	summary, err := os.ReadFile(filepath.Join(artifactDir, SummaryFileName))
	require.NoError(t, err)
	assert.Equal(t,
		"LeakSanitizer: detected memory leaks\nABORTING"+
			"MemorySanitizer: use-of-uninitialized-value\nABORTING",
		string(summary), "bug_summary.txt accumulates")
}

func TestHandleCrash_MissingTestCaseFails(t *testing.T) {
	artifactDir := filepath.Join(t.TempDir(), "artifacts")
	manager := newTestManager()

	outcome := &types.RunOutcome{
		TestCase: filepath.Join(t.TempDir(), "does-not-exist"),
		Output:   "AddressSanitizer: SEGV on unknown address",
	}
	err := manager.HandleCrash(context.Background(), &types.FuzzTarget{Name: "x"}, outcome, artifactDir)
	assert.Error(t, err)
}
