package libfuzzer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// unitTimeoutSec is the per-input timeout, matching what ClusterFuzz
	// runs OSS-Fuzz targets with.
	unitTimeoutSec = 25
	// rssLimitMB is the per-process memory cap, same source.
	rssLimitMB = 2560
)

// Instance is a single libFuzzer process invocation.
type Instance struct {
	Binary       string        // path to the fuzz target binary
	CorpusDir    string        // seed corpus directory, empty when none
	ArtifactDir  string        // directory crash artifacts are written to
	MaxTotalTime time.Duration // fuzzing budget passed as -max_total_time
	Env          []string      // extra environment for the target process

	logger *zap.Logger
}

// Fuzz launches the libFuzzer process and blocks until it exits, the
// graceful-shutdown window is reached, or the context is cancelled.
// Behavior is as follows:
//
//  1. Starts the target binary with the instance's args and environment.
//  2. -max_total_time makes the fuzzer exit on its own once the budget
//     elapses; crashes also end the process immediately.
//  3. If `gracefulTimeout` elapses before the process exits, sends a SIGINT
//     to request graceful shutdown.
//  4. If `ctx` is cancelled at any time, the CommandContext ensures the
//     process is killed (SIGKILL).
//
// Returns the combined stdout and stderr of the run. The process is never
// left running once this method returns.
func (m Instance) Fuzz(ctx context.Context, gracefulTimeout time.Duration) string {
	var outBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, m.Binary, m.buildArgs()...)
	cmd.Env = append(os.Environ(), m.Env...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &outBuf

	// Channel to observe when the process exits
	done := make(chan struct{})
	go func() {
		m.logger.Info("running libFuzzer", zap.String("command", cmd.String()))
		_ = cmd.Run() // crash exits are non-zero; the outcome is read from the output
		close(done)
	}()

	timer := time.NewTimer(gracefulTimeout)
	defer timer.Stop()

	select {
	case <-done:
		// Process exited on its own, either budget spent or crash found

	case <-timer.C:
		// Budget overrun, request graceful shutdown
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGINT)
		}
		select {
		case <-done:
		case <-ctx.Done():
			<-done // CommandContext kills the process, wait for Run to return
		}

	case <-ctx.Done():
		<-done
	}

	return outBuf.String()
}

// buildArgs builds the libFuzzer command line for the instance.
func (m Instance) buildArgs() []string {
	args := []string{
		fmt.Sprintf("-max_total_time=%d", int(m.MaxTotalTime.Seconds())),
		fmt.Sprintf("-timeout=%d", unitTimeoutSec),
		fmt.Sprintf("-rss_limit_mb=%d", rssLimitMB),
		fmt.Sprintf("-artifact_prefix=%s/", m.ArtifactDir),
	}

	// A trailing corpus directory doubles as the seed set and the store
	// for newly discovered inputs.
	if m.CorpusDir != "" {
		args = append(args, m.CorpusDir)
	}
	return args
}
