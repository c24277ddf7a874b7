package libfuzzer

import (
	"cifuzz/config"
	"cifuzz/internal/fuzz"
	"cifuzz/internal/types"
	"cifuzz/pkg/telemetry"
	"cifuzz/pkg/watchdog"
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	LibFuzzerTmpDir = "/tmp/cifuzz/libfuzzer" // <target>/artifacts

	// shutdownGrace is how long past the fuzzing budget the engine waits
	// before escalating from -max_total_time to SIGINT, and again from
	// SIGINT to a hard kill.
	shutdownGrace = 10 * time.Second
)

// testUnitRe matches libFuzzer's report line for a written crash artifact.
var testUnitRe = regexp.MustCompile(`Test unit written to (\S+)`)

type LibFuzzer struct {
	logger      *zap.Logger
	watchDogFac *watchdog.WatchDogFactory
	appConfig   *config.AppConfig
}

type LibFuzzerParams struct {
	fx.In

	Logger      *zap.Logger
	WatchDogFac *watchdog.WatchDogFactory
	AppConfig   *config.AppConfig
}

func NewLibFuzzer(params LibFuzzerParams) *LibFuzzer {
	return &LibFuzzer{
		params.Logger,
		params.WatchDogFac,
		params.AppConfig,
	}
}

func (f *LibFuzzer) SupportedEngines() []string {
	return []string{"libfuzzer"}
}

// Run executes the target binary under libFuzzer until its budget elapses or
// it crashes. Crash artifacts are picked up by a filesystem watchdog on the
// artifact directory, with the fuzzer's own output scanned as a fallback.
func (f *LibFuzzer) Run(ctx context.Context, target *types.FuzzTarget) (*types.RunOutcome, error) {
	tracer := telemetry.FromContext(ctx)
	logger := f.logger.With(zap.String("target", target.Name))

	artifactDir, err := f.prepareArtifactDir(target)
	if err != nil {
		logger.Error("failed to prepare artifact directory", zap.Error(err))
		return nil, err
	}

	// The watchdog lives for exactly this run; cancelling watchCtx closes
	// the notify channel and with it the collector below.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	artifactNotifyChan := make(chan string, 16)
	dog, err := f.watchDogFac.New(watchCtx, artifactNotifyChan, filterArtifactFiles)
	if err != nil {
		logger.Error("failed to create artifact watchdog", zap.Error(err))
		return nil, err
	}
	if err := dog.AddDir(artifactDir); err != nil {
		logger.Error("failed to watch artifact directory", zap.Error(err))
		return nil, err
	}

	firstArtifact := make(chan string, 1)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for artifactFile := range artifactNotifyChan {
			select {
			case firstArtifact <- artifactFile:
				logger.Info("crash artifact detected", zap.String("artifact", artifactFile))
			default:
				logger.Debug("additional crash artifact ignored", zap.String("artifact", artifactFile))
			}
		}
	}()

	instance := &Instance{
		Binary:       target.BinaryPath,
		CorpusDir:    target.CorpusDir,
		ArtifactDir:  artifactDir,
		MaxTotalTime: target.Duration,
		logger:       logger,
	}

	tracer.AddEvent("fuzzer.libfuzzer.start", telemetry.EventAttributes{})
	fuzzCtx, cancel := context.WithTimeout(ctx, target.Duration+2*shutdownGrace)
	defer cancel()
	output := instance.Fuzz(fuzzCtx, target.Duration+shutdownGrace)
	tracer.AddEvent("fuzzer.libfuzzer.finished", telemetry.EventAttributes{})

	// Tear down the watchdog and wait for the collector so the artifact
	// channel is fully drained before we look at it.
	stopWatch()
	<-collectorDone

	testCase := ""
	select {
	case testCase = <-firstArtifact:
	default:
		testCase = f.scanOutputForArtifact(output, artifactDir, logger)
	}

	return &types.RunOutcome{
		TestCase: testCase,
		Output:   output,
	}, nil
}

// scanOutputForArtifact recovers the crash artifact path from the fuzzer's
// own report when the watchdog missed the file event.
func (f *LibFuzzer) scanOutputForArtifact(output, artifactDir string, logger *zap.Logger) string {
	match := testUnitRe.FindStringSubmatch(output)
	if match == nil {
		return ""
	}

	artifactPath := match[1]
	if !filepath.IsAbs(artifactPath) {
		artifactPath = filepath.Join(artifactDir, filepath.Base(artifactPath))
	}
	if _, err := os.Stat(artifactPath); err != nil {
		logger.Warn("reported crash artifact not found on disk",
			zap.String("artifact", artifactPath), zap.Error(err))
		return ""
	}

	logger.Info("crash artifact recovered from fuzzer output", zap.String("artifact", artifactPath))
	return artifactPath
}

func (f *LibFuzzer) prepareArtifactDir(target *types.FuzzTarget) (string, error) {
	artifactDir := path.Join(LibFuzzerTmpDir, target.Name, "artifacts")
	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return "", err
	}
	return artifactDir, nil
}

// filterArtifactFiles keeps only the files libFuzzer writes for failing
// inputs; everything else landing in the artifact directory is noise.
func filterArtifactFiles(artifactFileName string) bool {
	baseName := path.Base(artifactFileName)
	for _, prefix := range []string{"crash-", "leak-", "oom-", "timeout-"} {
		if strings.HasPrefix(baseName, prefix) {
			return true
		}
	}
	return false
}

var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLibFuzzer, fx.As(new(fuzz.Fuzzer)), fx.ResultTags(`group:"fuzzers"`))),
)
