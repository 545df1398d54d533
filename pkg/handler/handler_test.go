package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumyai/varenrich/pkg/db"
	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/pipeline"
)

type queued struct {
	stage     string
	projectID string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	queue []queued
}

func (d *recordingDispatcher) Enqueue(_ context.Context, stage, projectID string, _ map[string]string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, queued{stage, projectID})
	return nil
}

type testServer struct {
	dir      string
	store    *db.Store
	dispatch *recordingDispatcher
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := db.Open(db.DriverSQLite, filepath.Join(dir, "db", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	projects := filepath.Join(dir, "projects")
	d := &recordingDispatcher{}
	reg := prometheus.NewRegistry()
	orch := pipeline.New(store, nil, nil, d, pipeline.Options{ProjectsDir: projects})
	orch.SetMetrics(pipeline.NewMetrics(reg))

	return &testServer{
		dir:      dir,
		store:    store,
		dispatch: d,
		handler: NewRouter(&AppContext{
			Store:       store,
			Pipeline:    orch,
			ProjectsDir: projects,
			Gatherer:    reg,
		}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return s.do(t, method, path, body, "application/json")
}

func (s *testServer) createProject(t *testing.T) *model.Project {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.InheritanceFile = filepath.Join(s.dir, "genes.tsv")
	rec := s.doJSON(t, http.MethodPost, "/api/v1/projects", map[string]any{"title": "cohort A", "config": cfg})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p model.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return &p
}

func (s *testServer) upload(t *testing.T, projectID, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("sample_name", "S1"))
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/files", &buf, mw.FormDataContentType())
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Health)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProject(t *testing.T) {
	s := newTestServer(t)

	t.Run("invalid config", func(t *testing.T) {
		cfg := model.DefaultConfig()
		cfg.Frequency = 0
		rec := s.doJSON(t, http.MethodPost, "/api/v1/projects", map[string]any{"title": "x", "config": cfg})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/projects", strings.NewReader("{"), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("created", func(t *testing.T) {
		p := s.createProject(t)
		assert.Equal(t, model.StateInitial, p.State)

		rec := s.do(t, http.MethodGet, "/api/v1/projects/"+p.ID, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var status struct {
			Project model.Project `json:"project"`
			Next    string        `json:"next_stage"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "cohort A", status.Project.Title)
		assert.Equal(t, pipeline.StageAssemble, status.Next)
	})

	t.Run("unknown", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/projects/nope", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUploadAndDeleteFile(t *testing.T) {
	s := newTestServer(t)
	p := s.createProject(t)

	rec := s.upload(t, p.ID, "../s1.vcf", "##fileformat=VCFv4.2\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var f model.VariantFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "S1", f.SampleName)
	assert.Equal(t, filepath.Join(s.dir, "projects", p.ID, "uploads"), filepath.Dir(f.Path))
	assert.True(t, strings.HasSuffix(f.Path, "-s1.vcf"))
	assert.FileExists(t, f.Path)

	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var files []model.VariantFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 1)

	rec = s.do(t, http.MethodDelete, "/api/v1/projects/"+p.ID+"/files/"+strconv.FormatInt(f.ID, 10), nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoFileExists(t, f.Path)

	rec = s.do(t, http.MethodDelete, "/api/v1/projects/"+p.ID+"/files/"+strconv.FormatInt(f.ID, 10), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/projects/"+p.ID+"/files/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadUnknownProject(t *testing.T) {
	s := newTestServer(t)
	rec := s.upload(t, "nope", "s1.vcf", "x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessAndCheckScores(t *testing.T) {
	s := newTestServer(t)
	p := s.createProject(t)

	rec := s.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/process", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"stage":"assemble"}`, rec.Body.String())
	assert.Equal(t, []queued{{pipeline.StageAssemble, p.ID}}, s.dispatch.queue)

	// nothing to check before the filters ran
	rec = s.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/check-scores", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, s.store.SetState(context.Background(), p.ID, model.StateCaddError))
	rec = s.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/check-scores", nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, s.dispatch.queue, 2)
}

func TestUpdateConfigWhileRunning(t *testing.T) {
	s := newTestServer(t)
	p := s.createProject(t)
	ctx := context.Background()

	job, err := s.store.BeginJob(ctx, p.ID, pipeline.StageAssemble)
	require.NoError(t, err)

	cfg := p.Config
	cfg.Impact = model.ImpactHigh
	rec := s.doJSON(t, http.MethodPut, "/api/v1/projects/"+p.ID+"/config", cfg)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, s.store.CommitStage(ctx, job, model.StateAnnotated, &model.Artifacts{Generation: 0, Annotated: "x"}))
	rec = s.doJSON(t, http.MethodPut, "/api/v1/projects/"+p.ID+"/config", cfg)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated model.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, model.ImpactHigh, updated.Config.Impact)

	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/jobs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobDone, jobs[0].State)
}

func TestResultDownload(t *testing.T) {
	s := newTestServer(t)
	p := s.createProject(t)
	ctx := context.Background()

	rec := s.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/results/stats", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/results/other", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stats := filepath.Join(s.dir, "stats.csv")
	require.NoError(t, os.WriteFile(stats, []byte("gene,p\nGENE1,0.4\n"), 0o644))
	job, err := s.store.BeginJob(ctx, p.ID, pipeline.StageAnalyze)
	require.NoError(t, err)
	require.NoError(t, s.store.CommitStage(ctx, job, model.StateDone, &model.Artifacts{Stats: stats}))

	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/results/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gene,p\nGENE1,0.4\n", rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
}

func TestBackgroundSets(t *testing.T) {
	s := newTestServer(t)
	vcf := filepath.Join(s.dir, "igsr.vcf.gz")
	panel := filepath.Join(s.dir, "igsr.panel")
	require.NoError(t, os.WriteFile(vcf, []byte("x"), 0o644))

	rec := s.doJSON(t, http.MethodPut, "/api/v1/backgrounds/IGSR", map[string]string{"file": vcf})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// panel missing on disk
	rec = s.doJSON(t, http.MethodPut, "/api/v1/backgrounds/IGSR", map[string]string{"file": vcf, "population": panel})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, os.WriteFile(panel, []byte("sample\tpop\n"), 0o644))
	rec = s.doJSON(t, http.MethodPut, "/api/v1/backgrounds/IGSR", map[string]string{"file": vcf, "population": panel})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/backgrounds", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sets []model.BackgroundSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sets))
	assert.Equal(t, []model.BackgroundSet{{Name: "IGSR", File: vcf, Population: panel}}, sets)
}
