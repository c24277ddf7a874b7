package fuzz

import (
	"cifuzz/config"
	"cifuzz/internal/types"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEngine struct {
	engines []string
	outcome *types.RunOutcome
	err     error
	got     *types.FuzzTarget
}

func (s *stubEngine) SupportedEngines() []string { return s.engines }

func (s *stubEngine) Run(ctx context.Context, target *types.FuzzTarget) (*types.RunOutcome, error) {
	s.got = target
	return s.outcome, s.err
}

func newTestRunner(engine string, fuzzers ...Fuzzer) *Runner {
	return NewRunner(RunnerParams{
		Logger:    zap.NewNop(),
		Fuzzers:   fuzzers,
		AppConfig: &config.AppConfig{FuzzEngine: engine},
	})
}

func TestRun_DispatchesToMatchingEngine(t *testing.T) {
	want := &types.RunOutcome{Output: "INFO: Done, no crashes found"}
	stub := &stubEngine{engines: []string{"libfuzzer"}, outcome: want}
	runner := newTestRunner("libfuzzer", stub)

	target := &types.FuzzTarget{Name: "zlib_fuzzer", BinaryPath: "/out/zlib_fuzzer"}
	outcome, err := runner.Run(context.Background(), target)
	require.NoError(t, err)
	assert.Same(t, want, outcome)
	assert.Same(t, target, stub.got)
}

func TestRun_UnknownEngine(t *testing.T) {
	runner := newTestRunner("honggfuzz", &stubEngine{engines: []string{"libfuzzer"}})

	_, err := runner.Run(context.Background(), &types.FuzzTarget{Name: "zlib_fuzzer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fuzzer registered")
}

func TestRun_NilTarget(t *testing.T) {
	runner := newTestRunner("libfuzzer", &stubEngine{engines: []string{"libfuzzer"}})

	_, err := runner.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_PropagatesEngineError(t *testing.T) {
	boom := errors.New("binary is not executable")
	stub := &stubEngine{engines: []string{"libfuzzer"}, err: boom}
	runner := newTestRunner("libfuzzer", stub)

	_, err := runner.Run(context.Background(), &types.FuzzTarget{Name: "zlib_fuzzer"})
	assert.ErrorIs(t, err, boom)
}

func TestNewRunner_SkipsNilEngines(t *testing.T) {
	live := &stubEngine{engines: []string{"libfuzzer"}, outcome: &types.RunOutcome{Output: "ok"}}
	runner := newTestRunner("libfuzzer", (*stubEngine)(nil), live)

	outcome, err := runner.Run(context.Background(), &types.FuzzTarget{Name: "zlib_fuzzer"})
	require.NoError(t, err)
	assert.Same(t, live.outcome, outcome)
}
