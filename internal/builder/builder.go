package builder

import (
	"cifuzz/config"
	"cifuzz/internal/ossfuzz"
	"cifuzz/internal/repo"
	"cifuzz/pkg/telemetry"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Builder compiles the fuzz targets of an OSS-Fuzz project at a requested
// source state into the workspace build output directory.
type Builder struct {
	logger        *zap.Logger
	layout        *ossfuzz.Layout
	repoManager   *repo.Manager
	appConfig     *config.AppConfig
	tracerFactory *telemetry.TracerFactory
}

type BuilderParams struct {
	fx.In

	Logger        *zap.Logger
	Layout        *ossfuzz.Layout
	RepoManager   *repo.Manager
	AppConfig     *config.AppConfig
	TracerFactory *telemetry.TracerFactory
}

func NewBuilder(p BuilderParams) *Builder {
	return &Builder{
		p.Logger,
		p.Layout,
		p.RepoManager,
		p.AppConfig,
		p.TracerFactory,
	}
}

// Build checks out the project repository at the pull request ref (when set)
// or the commit SHA, then compiles the fuzzers with the project's OSS-Fuzz
// build image. Binaries land in workspace/out. Returns false on any checkout
// or build failure; nothing is retried.
func (b *Builder) Build(ctx context.Context, projectName, repoName, workspace, commitSHA, prRef string) bool {
	if commitSHA == "" && prRef == "" {
		b.logger.Error("either a commit SHA or a pull request ref is required")
		return false
	}
	if _, err := os.Stat(workspace); err != nil {
		b.logger.Error("invalid workspace", zap.String("workspace", workspace), zap.Error(err))
		return false
	}

	gitWorkspace := filepath.Join(workspace, "storage")
	outDir := filepath.Join(workspace, "out")
	for _, dir := range []string{gitWorkspace, outDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			b.logger.Error("failed to create workspace directory", zap.String("dir", dir), zap.Error(err))
			return false
		}
	}

	tracer := b.tracerFactory.NewTracer(ctx, fmt.Sprintf("building %s", projectName)).WithAttributes(
		telemetry.NewSpanAttributes(telemetry.Building).
			WithExtraAttribute("project", projectName).
			WithExtraAttribute("repo", repoName))
	tracer.Start()
	defer tracer.End()
	ctx = context.WithValue(ctx, telemetry.TracerKey{}, tracer)

	repoURL, err := b.layout.DetectMainRepo(projectName, repoName)
	if err != nil {
		b.logger.Error("could not detect repo from project",
			zap.String("project", projectName), zap.String("repo", repoName), zap.Error(err))
		return false
	}

	tracer.AddEvent("builder.checkout", telemetry.EventAttributes{})
	repoDir, err := b.repoManager.Checkout(ctx, repoURL, gitWorkspace, repoName, commitSHA, prRef)
	if err != nil {
		b.logger.Error("can not check out requested state", zap.Error(err))
		return false
	}

	if err := checkDockerAvailability(ctx); err != nil {
		b.logger.Error("docker not available", zap.Error(err))
		return false
	}

	tracer.AddEvent("builder.compile", telemetry.EventAttributes{})
	if err := b.compile(ctx, projectName, repoName, repoDir, outDir); err != nil {
		b.logger.Error("building fuzzers failed", zap.Error(err))
		return false
	}

	b.logger.Info("fuzzers built successfully",
		zap.String("project", projectName), zap.String("out_dir", outDir))
	return true
}

// compile runs the project's OSS-Fuzz build image with the checked-out
// source and the workspace out directory mounted in.
func (b *Builder) compile(ctx context.Context, projectName, repoName, repoDir, outDir string) error {
	cmd := exec.CommandContext(ctx, "docker", b.buildRunArgs(projectName, repoName, repoDir, outDir)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filterOtelEnv(os.Environ()) // Filter out OpenTelemetry related env vars

	b.logger.Debug("running build command", zap.String("command", cmd.String()))
	return cmd.Run()
}

// buildRunArgs assembles the docker run invocation for the build step. The
// checked-out source replaces the image's bundled copy of the repo, and the
// compiled binaries land in outDir through the /out mount.
func (b *Builder) buildRunArgs(projectName, repoName, repoDir, outDir string) []string {
	return []string{
		"run", "--rm", "--privileged",
		"--cap-add", "SYS_PTRACE",
		"-e", "FUZZING_ENGINE=" + b.appConfig.FuzzEngine,
		"-e", "SANITIZER=" + b.appConfig.Sanitizer,
		"-e", "ARCHITECTURE=" + b.appConfig.Architecture,
		"-e", "OUT=/out",
		"-v", fmt.Sprintf("%s:/src/%s", repoDir, repoName),
		"-v", fmt.Sprintf("%s:/out", outDir),
		"gcr.io/oss-fuzz/" + projectName,
		"/bin/bash", "-c", "compile",
	}
}
