package corpus

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChecker struct {
	valid map[string]bool
}

func (c *fakeChecker) ProjectExists(name string) bool { return c.valid[name] }

func newTestRetriever(serverURL string, now time.Time, checker ProjectChecker) *Retriever {
	r := NewRetriever(RetrieverParams{Logger: zap.NewNop(), Checker: checker})
	if serverURL != "" {
		r.baseURL = serverURL
	}
	r.now = func() time.Time { return now }
	return r
}

// makeZipArchive builds an in-memory zip holding the given seed files.
func makeZipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetch_UnknownProjectRefused(t *testing.T) {
	outDir := t.TempDir()
	r := newTestRetriever("", time.Now(), &fakeChecker{})

	_, err := r.Fetch(context.Background(), "not-a-project", "some_fuzzer", outDir)
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(outDir, "corpus"), "refusal must happen before any directory is created")
}

func TestFetch_MissingOutDir(t *testing.T) {
	r := newTestRetriever("", time.Now(), &fakeChecker{valid: map[string]bool{"libpng": true}})

	_, err := r.Fetch(context.Background(), "libpng", "libpng_read_fuzzer", "/nonexistent/out")
	assert.Error(t, err)
}

func TestFetch_WindowRetryFindsOlderBackup(t *testing.T) {
	now := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	hitDate := now.AddDate(0, 0, -93).Format("2006-01-02")
	archive := makeZipArchive(t, map[string]string{
		"0123abcd": "seed one",
		"4567ef00": "seed two",
	})

	var mu sync.Mutex
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		requested = append(requested, req.URL.Path)
		mu.Unlock()
		if filepath.Base(req.URL.Path) == hitDate+".zip" {
			_, _ = w.Write(archive)
			return
		}
		http.NotFound(w, req)
	}))
	defer server.Close()

	outDir := t.TempDir()
	r := newTestRetriever(server.URL, now, &fakeChecker{valid: map[string]bool{"libpng": true}})

	corpusDir, err := r.Fetch(context.Background(), "libpng", "libpng_read_fuzzer", outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "corpus", "libpng_read_fuzzer"), corpusDir)

	seed, err := os.ReadFile(filepath.Join(corpusDir, "0123abcd"))
	require.NoError(t, err)
	assert.Equal(t, "seed one", string(seed))

	// Newest candidate first, one request per day, nothing past the hit.
	require.Len(t, requested, 4)
	for i, path := range requested {
		date := now.AddDate(0, 0, -(90 + i)).Format("2006-01-02")
		assert.Equal(t,
			fmt.Sprintf("/libpng-backup.clusterfuzz-external.appspot.com/corpus/libFuzzer/libpng_libpng_read_fuzzer/%s.zip", date),
			path)
	}
}

func TestFetch_AllDatesMissingExhaustsWindow(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.NotFound(w, req)
	}))
	defer server.Close()

	outDir := t.TempDir()
	r := newTestRetriever(server.URL, time.Now(), &fakeChecker{valid: map[string]bool{"zlib": true}})

	_, err := r.Fetch(context.Background(), "zlib", "zlib_uncompress_fuzzer", outDir)
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, requests, "every day in the window gets exactly one probe")
}

func TestBackupURL_Shape(t *testing.T) {
	r := newTestRetriever("", time.Now(), &fakeChecker{})
	url := r.backupURL("libpng", "libpng_read_fuzzer", "2026-05-24")
	assert.Equal(t,
		"https://storage.googleapis.com/libpng-backup.clusterfuzz-external.appspot.com/corpus/libFuzzer/libpng_libpng_read_fuzzer/2026-05-24.zip",
		url)
}
