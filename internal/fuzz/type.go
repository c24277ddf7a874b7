package fuzz

import (
	"cifuzz/internal/types"
	"context"
)

// Fuzzer describes the interface for different fuzzing engines
type Fuzzer interface {
	// Run the given target for its allotted duration.
	//
	// Fuzzing is expected to finish shortly after target.Duration.
	// If not, the engine must kill the fuzzer when the context is done.
	// The outcome carries the crashing input and raw output when the
	// target crashed, and an empty test case path when it did not.
	Run(ctx context.Context, target *types.FuzzTarget) (*types.RunOutcome, error)
	SupportedEngines() []string
}
