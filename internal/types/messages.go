package types

// CrashEvent is published to the optional crash sinks after a crash has been
// persisted to the artifact directory.
type CrashEvent struct {
	EventID   string `json:"event_id"`
	Project   string `json:"project"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Target    string `json:"target"`
	Sanitizer string `json:"sanitizer"`
	Engine    string `json:"engine"`
	TestCase  string `json:"test_case"` // artifact path of the failing input
	Summary   string `json:"summary"`   // extracted crash report text
	Digest    string `json:"digest"`    // md5 of the failing input, dedup key
}
