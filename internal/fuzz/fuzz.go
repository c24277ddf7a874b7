package fuzz

import (
	"cifuzz/config"
	"cifuzz/internal/types"
	"cifuzz/pkg/telemetry"
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Runner dispatches fuzz targets to whichever registered engine matches the
// configured one. Engines register themselves through the "fuzzers" group.
type Runner struct {
	logger    *zap.Logger
	fuzzerMap map[string]Fuzzer
	appConfig *config.AppConfig
}

type RunnerParams struct {
	fx.In
	Logger    *zap.Logger
	Fuzzers   []Fuzzer `group:"fuzzers"`
	AppConfig *config.AppConfig
}

func NewRunner(params RunnerParams) *Runner {
	fuzzerMap := make(map[string]Fuzzer)
	for _, fuzzer := range params.Fuzzers {
		fuzzerV := reflect.ValueOf(fuzzer)
		if fuzzerV.Kind() == reflect.Ptr && fuzzerV.IsNil() {
			continue // skip engines whose constructor opted out
		}
		for _, engine := range fuzzer.SupportedEngines() {
			fuzzerMap[engine] = fuzzer
			params.Logger.Debug("fuzzer registered", zap.String("engine", engine))
		}
	}

	return &Runner{
		params.Logger,
		fuzzerMap,
		params.AppConfig,
	}
}

// Run executes one target with the configured engine and reports its outcome.
func (r *Runner) Run(ctx context.Context, target *types.FuzzTarget) (*types.RunOutcome, error) {
	if target == nil {
		return nil, errors.New("target is nil")
	}

	r.logger.Info("running fuzz target",
		zap.String("target", target.Name),
		zap.Duration("duration", target.Duration),
		zap.String("engine", r.appConfig.FuzzEngine),
	)

	fuzzer, ok := r.fuzzerMap[r.appConfig.FuzzEngine]
	if !ok {
		r.logger.Error("fuzzer not found", zap.String("fuzz_engine", r.appConfig.FuzzEngine))
		return nil, fmt.Errorf("no fuzzer registered for engine %q", r.appConfig.FuzzEngine)
	}

	runTracer := telemetry.FromContext(ctx).
		Spawn(fmt.Sprintf("fuzzing %s", target.Name)).
		WithAttributes(telemetry.NewSpanAttributes(telemetry.Fuzzing).WithTarget(target.Name))
	runTracer.Start()
	defer runTracer.End()
	runCtx := context.WithValue(ctx, telemetry.TracerKey{}, runTracer)

	outcome, err := fuzzer.Run(runCtx, target)
	if err != nil {
		return nil, err
	}
	if outcome.Crashed() {
		runTracer.AddEvent("crash_found", telemetry.NewEventAttributes(map[string]string{
			"test_case": outcome.TestCase,
		}))
	}
	return outcome, nil
}
