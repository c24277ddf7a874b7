package main

import (
	"cifuzz/config"
	"cifuzz/internal/builder"
	"cifuzz/internal/ossfuzz"
	"cifuzz/internal/repo"
	"cifuzz/pkg/logger"
	"cifuzz/pkg/telemetry"
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

type buildParams struct {
	fx.In

	Ctx        context.Context
	Logger     *zap.Logger
	AppConfig  *config.AppConfig
	Builder    *builder.Builder
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
}

// buildFuzzers builds the project's fuzzers once the app has started and
// shuts the app down with the CI exit code.
func buildFuzzers(p buildParams) {
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

func execute(p buildParams) int {
	cfg := p.AppConfig

	// With DRY_RUN set, build failures are logged but never fail the CI
	// step.
	errorCode := 1
	if cfg.DryRun {
		errorCode = 0
	}

	if cfg.Workspace == "" {
		p.Logger.Error("GITHUB_WORKSPACE not set, this binary needs to run in the Github action context")
		return errorCode
	}

	switch cfg.EventName {
	case "push":
		if !p.Builder.Build(p.Ctx, cfg.ProjectName, cfg.RepoName, cfg.Workspace, cfg.CommitSHA, "") {
			p.Logger.Error("error building fuzzers",
				zap.String("project", cfg.ProjectName), zap.String("commit", cfg.CommitSHA))
			return errorCode
		}
	case "pull_request":
		if !p.Builder.Build(p.Ctx, cfg.ProjectName, cfg.RepoName, cfg.Workspace, "", cfg.PullRequestRef) {
			p.Logger.Error("error building fuzzers",
				zap.String("project", cfg.ProjectName), zap.String("pr_ref", cfg.PullRequestRef))
			return errorCode
		}
	default:
		p.Logger.Warn("nothing to build for event", zap.String("event", cfg.EventName))
	}
	return 0
}

func main() {
	app := fx.New(
		fx.Provide(
			NewAppContext,              // inject app context
			config.LoadConfig,          // inject config
			logger.NewLogger,           // inject logger
			telemetry.NewTelemetry,     // inject telemetry
			telemetry.NewTracerFactory, // inject telemetry tracer factory
			ossfuzz.NewLayout,          // inject oss-fuzz checkout layout
			repo.NewManager,            // inject repo manager
			builder.NewBuilder,         // inject builder
		),
		fx.Invoke(
			buildFuzzers,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	app.Run()
}
