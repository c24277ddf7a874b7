package scheduler

import (
	"cifuzz/config"
	"cifuzz/internal/corpus"
	"cifuzz/internal/crash"
	"cifuzz/internal/fuzz"
	"cifuzz/internal/types"
	"cifuzz/pkg/telemetry"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler divides a total fuzzing budget across the targets discovered in
// a workspace and executes them until the budget is spent or the first crash
// is found.
type Scheduler struct {
	logger        *zap.Logger
	runner        *fuzz.Runner
	retriever     *corpus.Retriever
	crashManager  *crash.Manager
	appConfig     *config.AppConfig
	tracerFactory *telemetry.TracerFactory
}

type SchedulerParams struct {
	fx.In

	Logger        *zap.Logger
	Runner        *fuzz.Runner
	Retriever     *corpus.Retriever
	CrashManager  *crash.Manager
	AppConfig     *config.AppConfig
	TracerFactory *telemetry.TracerFactory
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		p.Logger,
		p.Runner,
		p.Retriever,
		p.CrashManager,
		p.AppConfig,
		p.TracerFactory,
	}
}

// RunFuzzers executes every fuzz target found in workspace/out, each for an
// equal floor(fuzzSeconds/targetCount) share of the budget. Targets run in
// discovery order through a worker pool; once any target crashes, no further
// target is dispatched and in-flight ones are cancelled. When projectName is
// set, a backup seed corpus is fetched per target before it runs.
//
// Returns (ranSuccessfully, crashFound). Invalid inputs are reported as
// (false, false), never as a panic or process exit.
func (s *Scheduler) RunFuzzers(ctx context.Context, fuzzSeconds int, workspace, projectName string) (bool, bool) {
	if _, err := os.Stat(workspace); err != nil {
		s.logger.Error("invalid workspace", zap.String("workspace", workspace), zap.Error(err))
		return false, false
	}
	outDir := filepath.Join(workspace, "out")
	artifactsDir := filepath.Join(outDir, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0755); err != nil {
		s.logger.Error("failed to create artifacts directory", zap.Error(err))
		return false, false
	}
	if fuzzSeconds < 1 {
		s.logger.Error("fuzz budget must be at least one second", zap.Int("fuzz_seconds", fuzzSeconds))
		return false, false
	}

	targets, err := fuzz.DiscoverTargets(outDir, s.logger)
	if err != nil {
		s.logger.Error("failed to discover fuzz targets", zap.String("out_dir", outDir), zap.Error(err))
		return false, false
	}
	if len(targets) == 0 {
		s.logger.Error("no fuzz targets found in out directory", zap.String("out_dir", outDir))
		return false, false
	}

	perTarget := time.Duration(fuzzSeconds/len(targets)) * time.Second
	if perTarget < time.Second {
		s.logger.Error("fuzz budget too small for the number of targets",
			zap.Int("fuzz_seconds", fuzzSeconds), zap.Int("targets", len(targets)))
		return false, false
	}
	s.logger.Info("starting fuzzing run",
		zap.Int("targets", len(targets)),
		zap.Duration("per_target", perTarget),
		zap.String("project", projectName))

	tracer := s.tracerFactory.NewTracer(ctx, "cifuzz run").WithAttributes(
		telemetry.NewSpanAttributes(telemetry.Fuzzing).
			WithExtraAttribute("fuzz_seconds", fuzzSeconds).
			WithExtraAttribute("target_count", len(targets)))
	tracer.Start()
	defer tracer.End()
	ctx = context.WithValue(ctx, telemetry.TracerKey{}, tracer)

	// stop flips once a crash is claimed; it gates dispatching, and the
	// cancel context reaps whatever is already in flight.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stop atomic.Bool
	var crashFound atomic.Bool

	group, groupCtx := errgroup.WithContext(runCtx)
	group.SetLimit(s.poolSize())

	for _, target := range targets {
		if stop.Load() {
			break
		}
		target.Duration = perTarget

		group.Go(func() error {
			if stop.Load() {
				return nil
			}
			s.prepareCorpus(groupCtx, target, outDir, projectName)

			outcome, err := s.runner.Run(groupCtx, target)
			if err != nil {
				s.logger.Error("fuzzer execution failed, continuing with remaining targets",
					zap.String("target", target.Name), zap.Error(err))
				return nil
			}
			if !outcome.Crashed() {
				s.logger.Info("fuzzer finished running", zap.String("target", target.Name))
				return nil
			}

			if !stop.CompareAndSwap(false, true) {
				s.logger.Info("crash ignored, an earlier one was already claimed",
					zap.String("target", target.Name))
				return nil
			}
			crashFound.Store(true)
			cancel()

			// Crash handling uses the parent context: our own fail-fast
			// cancellation must not abort artifact archival.
			if err := s.crashManager.HandleCrash(ctx, target, outcome, artifactsDir); err != nil {
				s.logger.Error("failed to handle crash", zap.String("target", target.Name), zap.Error(err))
			}
			return nil
		})
	}

	_ = group.Wait()

	if crashFound.Load() {
		return true, true
	}
	return true, false
}

// prepareCorpus fetches the backup seed corpus for the target when a project
// is supplied. A miss is logged and the target proceeds without seeds.
func (s *Scheduler) prepareCorpus(ctx context.Context, target *types.FuzzTarget, outDir, projectName string) {
	if projectName == "" {
		return
	}
	corpusDir, err := s.retriever.Fetch(ctx, projectName, target.Name, outDir)
	if err != nil {
		s.logger.Warn("the backup corpus is not being used for fuzzing",
			zap.String("target", target.Name), zap.Error(err))
		return
	}
	s.logger.Info("using corpus", zap.String("target", target.Name), zap.String("corpus", corpusDir))
	target.CorpusDir = corpusDir
}

func (s *Scheduler) poolSize() int {
	if s.appConfig.Parallelism < 1 {
		return 1
	}
	return s.appConfig.Parallelism
}
