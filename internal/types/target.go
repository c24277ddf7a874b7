package types

import "time"

// FuzzTarget identifies one fuzz-test binary discovered in the build output
// directory. Immutable once created; owned by the scheduling loop for its
// execution lifetime.
type FuzzTarget struct {
	Name       string        // binary basename, also the corpus key
	BinaryPath string        // absolute path to the target binary
	Duration   time.Duration // allotted slice of the total budget
	CorpusDir  string        // seed corpus directory, empty when none was retrieved
}

// RunOutcome is the terminal result of executing one FuzzTarget.
// A crash was detected iff both TestCase and Output are non-empty.
type RunOutcome struct {
	TestCase string // path to the failing input written by the engine
	Output   string // raw captured fuzzer/sanitizer output
}

// Crashed reports whether the outcome carries a reproducible crash: the
// engine must have produced both a failing input and its diagnostic output.
func (o *RunOutcome) Crashed() bool {
	return o != nil && o.TestCase != "" && o.Output != ""
}
