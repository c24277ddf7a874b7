package crash

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// SummaryFileName is the append-only crash summary inside the artifact
// directory. Extractions from repeated runs accumulate in it.
const SummaryFileName = "bug_summary.txt"

// Marker lists from ClusterFuzz's crash analyzer. Order is priority: the
// first entry found anywhere in the output wins, regardless of where later
// entries occur.
func DefaultStartMarkers() []string {
	return []string{
		"AddressSanitizer",
		"ASAN:",
		"CFI: Most likely a control flow integrity violation;",
		"ERROR: libFuzzer",
		"KASAN:",
		"LeakSanitizer",
		"MemorySanitizer",
		"ThreadSanitizer",
		"UndefinedBehaviorSanitizer",
		"UndefinedSanitizer",
	}
}

func DefaultEndMarkers() []string {
	return []string{
		"ABORTING",
		"END MEMORY TOOL REPORT",
		"End of process memory map.",
		"END_KASAN_OUTPUT",
		"SUMMARY:",
		"Shadow byte and word",
		"[end of stack trace]",
		"\nExiting",
		"minidump has been written",
	}
}

// Extractor slices the crash summary out of raw fuzzer output using the
// marker lists it was constructed with. It is a best-effort substring
// detector, not a parser of sanitizer grammar.
type Extractor struct {
	logger       *zap.Logger
	startMarkers []string
	endMarkers   []string
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return NewExtractorWithMarkers(logger, DefaultStartMarkers(), DefaultEndMarkers())
}

// NewExtractorWithMarkers builds an extractor around custom ordered marker
// lists. The lists are copied; callers cannot mutate them afterwards.
func NewExtractorWithMarkers(logger *zap.Logger, startMarkers, endMarkers []string) *Extractor {
	return &Extractor{
		logger:       logger,
		startMarkers: append([]string(nil), startMarkers...),
		endMarkers:   append([]string(nil), endMarkers...),
	}
}

// Extract locates the crash summary in fuzzerOutput and appends it to the
// summary file in outDir. No recognized start marker, or an empty slice, is a
// silent no-op and returns an empty summary. The returned string is the
// appended slice.
func (e *Extractor) Extract(fuzzerOutput, outDir string) (string, error) {
	begin, ok := e.findStart(fuzzerOutput)
	if !ok {
		e.logger.Debug("no start marker found in fuzzer output, skipping extraction")
		return "", nil
	}
	end := e.findEnd(fuzzerOutput)
	if end <= begin {
		// the matched end marker precedes the start, nothing to report
		e.logger.Debug("crash summary slice is empty, skipping extraction")
		return "", nil
	}
	summary := fuzzerOutput[begin:end]

	summaryPath := filepath.Join(outDir, SummaryFileName)
	file, err := os.OpenFile(summaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("open summary file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(summary); err != nil {
		return "", fmt.Errorf("append summary: %w", err)
	}

	e.logger.Info("extracted crash summary",
		zap.String("summary_file", summaryPath),
		zap.Int("length", len(summary)))
	return summary, nil
}

// findStart returns the index of the highest-priority start marker present
// anywhere in the output. List order decides ties, not occurrence order.
func (e *Extractor) findStart(fuzzerOutput string) (int, bool) {
	for _, marker := range e.startMarkers {
		if idx := strings.Index(fuzzerOutput, marker); idx >= 0 {
			return idx, true
		}
	}
	return 0, false
}

// findEnd returns the index one past the highest-priority end marker, or
// end-of-text when no marker matches.
func (e *Extractor) findEnd(fuzzerOutput string) int {
	for _, marker := range e.endMarkers {
		if idx := strings.Index(fuzzerOutput, marker); idx >= 0 {
			return idx + len(marker)
		}
	}
	return len(fuzzerOutput)
}
