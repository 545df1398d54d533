package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "projects/p1/gen-3/stats.csv", Key("p1", 3, "/data/projects/p1/gen-3/stats.csv"))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	var mu sync.Mutex
	got := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got[r.URL.Path] = string(body)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	stats := filepath.Join(dir, "stats.csv")
	require.NoError(t, os.WriteFile(stats, []byte("gene,p\nGENE1,0.4\n"), 0o644))

	e, err := New(context.Background(), Config{
		Bucket:          "results",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	require.NoError(t, e.Export(context.Background(), "p1", 2, []string{stats, ""}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"/results/projects/p1/gen-2/stats.csv": "gene,p\nGENE1,0.4\n"}, got)
}

func TestExportMissingFile(t *testing.T) {
	e, err := New(context.Background(), Config{Bucket: "results", Endpoint: "http://127.0.0.1:1", PathStyle: true,
		AccessKeyID: "test", SecretAccessKey: "test"})
	require.NoError(t, err)
	assert.Error(t, e.Export(context.Background(), "p1", 1, []string{filepath.Join(t.TempDir(), "missing.csv")}))
}
