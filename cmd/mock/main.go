package main

// mock fuzz target

// Pretends to be a libFuzzer binary for exercising the runner end to end
// without a real OSS-Fuzz build: honors the handful of flags the runner
// passes, burns the budget, and with MOCK_CRASH=true writes a crash artifact
// and prints an AddressSanitizer-shaped report.

import (
	"crypto/sha1"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"
)

func main() {
	maxTotalTime := flag.Int("max_total_time", 10, "seconds to pretend to fuzz")
	flag.Int("timeout", 25, "per-input timeout, accepted and ignored")
	flag.Int("rss_limit_mb", 2560, "memory cap, accepted and ignored")
	artifactPrefix := flag.String("artifact_prefix", "./", "prefix for crash artifacts")
	flag.Parse()

	fmt.Fprintf(os.Stderr, "INFO: Seed: %d\n", time.Now().UnixNano()%4294967295)
	if corpusDir := flag.Arg(0); corpusDir != "" {
		entries, err := os.ReadDir(corpusDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "No such directory: %s\n", corpusDir)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "INFO: seed corpus: %d files found in %s\n", len(entries), corpusDir)
	}

	if os.Getenv("MOCK_CRASH") != "true" {
		time.Sleep(time.Duration(*maxTotalTime) * time.Second)
		fmt.Fprintln(os.Stderr, "INFO: Done, no crashes found")
		return
	}

	time.Sleep(1 * time.Second)

	input := []byte("mock-crash-input")
	digest := sha1.Sum(input)
	artifact := *artifactPrefix + "crash-" + hex.EncodeToString(digest[:])
	if err := os.WriteFile(artifact, input, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write artifact: %v\n", err)
		os.Exit(1)
	}

	pid := os.Getpid()
	fmt.Fprintf(os.Stderr, "==%d==ERROR: AddressSanitizer: heap-buffer-overflow on address 0x602000000011\n", pid)
	fmt.Fprintln(os.Stderr, "READ of size 1 at 0x602000000011 thread T0")
	fmt.Fprintln(os.Stderr, "    #0 0x55e51c in crash_me /src/mock.c:3:5")
	fmt.Fprintln(os.Stderr, "    #1 0x55e4a0 in LLVMFuzzerTestOneInput /src/mock.c:9:3")
	fmt.Fprintf(os.Stderr, "Test unit written to %s\n", artifact)
	fmt.Fprintln(os.Stderr, "SUMMARY: AddressSanitizer: heap-buffer-overflow /src/mock.c:3:5 in crash_me")
	fmt.Fprintf(os.Stderr, "==%d==ABORTING\n", pid)
	os.Exit(1)
}
