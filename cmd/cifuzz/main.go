package main

import (
	"cifuzz/config"
	"cifuzz/internal/corpus"
	"cifuzz/internal/crash"
	"cifuzz/internal/fuzz"
	"cifuzz/internal/fuzz/libfuzzer"
	"cifuzz/internal/ossfuzz"
	"cifuzz/internal/scheduler"
	"cifuzz/pkg/database"
	"cifuzz/pkg/logger"
	"cifuzz/pkg/mq"
	"cifuzz/pkg/telemetry"
	"cifuzz/pkg/watchdog"
	"context"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func NewAppContext(lc fx.Lifecycle) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return ctx
}

type runParams struct {
	fx.In

	Ctx        context.Context
	Logger     *zap.Logger
	AppConfig  *config.AppConfig
	Scheduler  *scheduler.Scheduler
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
}

// runFuzzers runs the whole fuzzing pass once the app has started and shuts
// the app down with the CI exit code.
func runFuzzers(p runParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				code := execute(p)
				if err := p.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					p.Logger.Error("failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

func execute(p runParams) int {
	cfg := p.AppConfig

	// With DRY_RUN set, failures and crashes are logged but never fail the
	// CI step.
	errorCode := 1
	if cfg.DryRun {
		errorCode = 0
	}

	if cfg.Workspace == "" {
		p.Logger.Error("GITHUB_WORKSPACE not set, this binary needs to run in the Github action context")
		return errorCode
	}

	ranSuccessfully, crashFound := p.Scheduler.RunFuzzers(p.Ctx, cfg.FuzzSeconds, cfg.Workspace, cfg.ProjectName)
	if !ranSuccessfully {
		p.Logger.Error("error running fuzzers", zap.String("project", cfg.ProjectName))
		return errorCode
	}
	if crashFound {
		p.Logger.Info("crash was detected, failing the CI step",
			zap.String("project", cfg.ProjectName))
		return errorCode
	}

	p.Logger.Info("fuzzing finished, no crashes found")
	return 0
}

func main() {
	app := fx.New(
		fx.Provide(
			NewAppContext,               // inject app context
			config.LoadConfig,           // inject config
			logger.NewLogger,            // inject logger
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			database.NewDBConnection,    // inject db connection
			database.NewRedisClient,     // inject redis client
			mq.NewRabbitMQ,              // inject rabbitmq service
			watchdog.NewWatchDogFactory, // inject watchdog factory
			ossfuzz.NewLayout,           // inject oss-fuzz checkout layout
			corpus.NewRetriever,         // inject corpus retriever
			crash.NewExtractor,          // inject crash report extractor
			crash.NewManager,            // inject crash manager
			fuzz.NewRunner,              // inject fuzz runner
			scheduler.NewScheduler,      // inject scheduler
		),
		fx.Provide(func(layout *ossfuzz.Layout) corpus.ProjectChecker {
			return layout
		}),
		libfuzzer.Module, // inject libFuzzer engine
		fx.Invoke(
			runFuzzers,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	app.Run()
}
