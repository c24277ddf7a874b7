package corpus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cifuzz/internal/utils"
	"cifuzz/pkg/telemetry"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	gcsBaseURL = "https://storage.googleapis.com"

	// ClusterFuzz prunes recent backups aggressively, so the freshest
	// reliably-published corpora sit ~3 months back. Offsets are probed in
	// increasing order: newest candidate date first.
	windowStartDays = 90
	windowEndDays   = 100 // exclusive
)

// ProjectChecker reports whether a project identifier names a real OSS-Fuzz
// project. Retrieval for unknown projects is refused before anything touches
// the filesystem.
type ProjectChecker interface {
	ProjectExists(name string) bool
}

// Retriever downloads the most recent available backup corpus for a fuzz
// target and materializes it under the run's out directory. Nothing is cached
// across runs.
type Retriever struct {
	logger  *zap.Logger
	checker ProjectChecker
	client  *http.Client

	baseURL string
	now     func() time.Time
}

type RetrieverParams struct {
	fx.In

	Logger  *zap.Logger
	Checker ProjectChecker
}

func NewRetriever(params RetrieverParams) *Retriever {
	return &Retriever{
		logger:  params.Logger,
		checker: params.Checker,
		client:  &http.Client{Timeout: 5 * time.Minute},
		baseURL: gcsBaseURL,
		now:     time.Now,
	}
}

// Fetch probes the dated backup URLs within the window and extracts the first
// archive that exists into <outDir>/corpus/<target>. A miss on one date
// advances to the next; an error return means the whole window missed (or a
// precondition failed) and the caller should fuzz without a seed corpus.
func (r *Retriever) Fetch(ctx context.Context, project, target, outDir string) (string, error) {
	if !r.checker.ProjectExists(project) {
		r.logger.Error("project is not a valid OSS-Fuzz project", zap.String("project", project))
		return "", fmt.Errorf("unknown project %q", project)
	}
	if _, err := os.Stat(outDir); err != nil {
		r.logger.Error("out directory does not exist", zap.String("out_dir", outDir), zap.Error(err))
		return "", fmt.Errorf("out directory %s: %w", outDir, err)
	}

	corpusDir := filepath.Join(outDir, "corpus", target)
	if err := os.MkdirAll(corpusDir, 0755); err != nil {
		return "", fmt.Errorf("create corpus directory: %w", err)
	}

	tracer := telemetry.FromContext(ctx).Spawn("retrieving backup corpus").
		WithAttributes(telemetry.NewSpanAttributes(telemetry.Corpus).WithTarget(target))
	tracer.Start()
	defer tracer.End()

	for dayDiff := windowStartDays; dayDiff < windowEndDays; dayDiff++ {
		date := r.now().AddDate(0, 0, -dayDiff).Format("2006-01-02")
		corpusLink := r.backupURL(project, target, date)
		r.logger.Info("trying corpus", zap.String("url", corpusLink))

		if err := r.download(ctx, corpusLink, corpusDir); err != nil {
			r.logger.Warn("unable to download corpus",
				zap.String("url", corpusLink),
				zap.Error(err))
			tracer.AddEvent("corpus_date_missed", telemetry.NewEventAttributes(map[string]string{"date": date}))
			continue
		}

		seeds, err := os.ReadDir(corpusDir)
		if err != nil {
			r.logger.Warn("failed to read corpus folder", zap.String("corpus_dir", corpusDir), zap.Error(err))
		}
		r.logger.Info("downloaded backup corpus",
			zap.String("target", target),
			zap.String("date", date),
			zap.Int("seed_count", len(seeds)))
		tracer.WithAttributes(telemetry.EmptySpanAttributes().WithCorpusSize(len(seeds)))
		return corpusDir, nil
	}

	return "", fmt.Errorf("no backup corpus available for %s_%s within the window", project, target)
}

func (r *Retriever) backupURL(project, target, date string) string {
	bucket := fmt.Sprintf("%s-backup.clusterfuzz-external.appspot.com", project)
	return fmt.Sprintf("%s/%s/corpus/libFuzzer/%s_%s/%s.zip", r.baseURL, bucket, project, target, date)
}

// download fetches the zip at url into a temp file and extracts it into
// corpusDir. Any non-200 status is a miss.
func (r *Retriever) download(ctx context.Context, url, corpusDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build corpus request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch corpus: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch corpus: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "corpus-*.zip")
	if err != nil {
		return fmt.Errorf("create corpus temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save corpus archive: %w", err)
	}

	if err := utils.Unzip(tmp.Name(), corpusDir); err != nil {
		return fmt.Errorf("extract corpus archive: %w", err)
	}
	return nil
}
