package knowledgebase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOpenAI struct {
	mu        sync.Mutex
	uploaded  []string
	batchIDs  []string
	storeName string
	polls     atomic.Int32
	final     string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()
		if r.FormValue("purpose") != "assistants" {
			http.Error(w, "bad purpose", http.StatusBadRequest)
			return
		}
		f.uploaded = append(f.uploaded, header.Filename)
		fmt.Fprintf(w, `{"id":"file-%s","object":"file","filename":%q,"purpose":"assistants"}`,
			strings.TrimSuffix(strings.ToLower(header.Filename), ".md"), header.Filename)

	case r.Method == http.MethodPost && r.URL.Path == "/v1/vector_stores":
		var req openai.VectorStoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.storeName = req.Name
		fmt.Fprint(w, `{"id":"vs_1","object":"vector_store","name":"kb"}`)

	case r.Method == http.MethodPost && r.URL.Path == "/v1/vector_stores/vs_1/file_batches":
		var req openai.VectorStoreFileBatchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.batchIDs = req.FileIDs
		fmt.Fprint(w, `{"id":"vsfb_1","object":"vector_store.file_batch","vector_store_id":"vs_1","status":"in_progress"}`)

	case r.Method == http.MethodGet && r.URL.Path == "/v1/vector_stores/vs_1/file_batches/vsfb_1":
		status := "in_progress"
		if f.polls.Add(1) >= 2 {
			status = f.final
		}
		fmt.Fprintf(w, `{"id":"vsfb_1","object":"vector_store.file_batch","vector_store_id":"vs_1","status":%q}`, status)

	default:
		http.NotFound(w, r)
	}
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for name, body := range map[string]string{
		"a.md":       "# A",
		"sub/b.md":   "# B",
		"c.MD":       "# C",
		"notes.txt":  "skip",
		"sub/d.json": "{}",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newTestUploader(t *testing.T, fake *fakeOpenAI) *Uploader {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	u := NewUploader(openai.NewClientWithConfig(cfg), zap.NewNop())
	u.pollInterval = 5 * time.Millisecond
	return u
}

func TestListMarkdown(t *testing.T) {
	dir := writeDocs(t)
	files, err := ListMarkdown(dir)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, _ := filepath.Rel(dir, f)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.md", "c.MD", "sub/b.md"}, rel)
}

func TestListMarkdown_Errors(t *testing.T) {
	_, err := ListMarkdown(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "folder not found")

	_, err = ListMarkdown(t.TempDir())
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestUpload_PollsUntilCompleted(t *testing.T) {
	fake := &fakeOpenAI{final: "completed"}
	u := newTestUploader(t, fake)

	res, err := u.Upload(t.Context(), writeDocs(t), "kb")
	require.NoError(t, err)
	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Equal(t, Result{VectorStoreID: "vs_1", BatchID: "vsfb_1", Files: 3}, res)
	assert.Equal(t, "kb", fake.storeName)
	assert.Equal(t, []string{"file-a", "file-c", "file-b"}, fake.batchIDs, "ids keep the walk order")

	sort.Strings(fake.uploaded)
	assert.Equal(t, []string{"a.md", "b.md", "c.MD"}, fake.uploaded)
	assert.GreaterOrEqual(t, fake.polls.Load(), int32(2))
}

func TestUpload_FailedBatch(t *testing.T) {
	u := newTestUploader(t, &fakeOpenAI{final: "failed"})

	res, err := u.Upload(t.Context(), writeDocs(t), "kb")
	assert.ErrorIs(t, err, ErrIndexingFailed)
	assert.Equal(t, "vs_1", res.VectorStoreID)
}

func TestDefaultName(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "BAI knowledgebase (2026-10-14T09:30:00Z)", DefaultName(at))
}
