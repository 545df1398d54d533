package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/yumyai/varenrich/pkg/handler/types"
	"github.com/yumyai/varenrich/pkg/middle"
	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/pipeline"
)

func (app *AppContext) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req types.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	cfg := model.DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := app.Store.CreateProject(r.Context(), req.Title, cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middle.Logger(r.Context()).Info("Project created", zap.String("project", p.ID), zap.String("title", p.Title))
	writeJSON(w, http.StatusCreated, p)
}

func (app *AppContext) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := app.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// ProjectStatusHandler returns the project with its working set and files.
func (app *AppContext) ProjectStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, a, err := app.Store.GetProjectArtifacts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	files, err := app.Store.ListVariantFiles(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ProjectStatus{
		Project:   p,
		Artifacts: a,
		Files:     files,
		Next:      pipeline.StageFor(p.State),
	})
}

func (app *AppContext) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg model.ProjectConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	p, err := app.Pipeline.Reconfigure(r.Context(), r.PathValue("id"), cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProcessHandler enqueues the stage that continues the project.
func (app *AppContext) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	stage, err := app.Pipeline.Process(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.ProcessResponse{Stage: stage})
}

func (app *AppContext) CheckScoresHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Pipeline.CheckScores(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.ProcessResponse{Stage: pipeline.StageCheckScores})
}

func (app *AppContext) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := app.Store.GetProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	jobs, err := app.Store.ListJobs(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// resultFiles names the downloadable tables of a project.
var resultFiles = map[string]func(a *model.Artifacts) string{
	"stats":                func(a *model.Artifacts) string { return a.Stats },
	"qq":                   func(a *model.Artifacts) string { return a.QQ },
	"qc-stats":             func(a *model.Artifacts) string { return a.QCStats },
	"qc-qq":                func(a *model.Artifacts) string { return a.QCQQ },
	"case-counts":          func(a *model.Artifacts) string { return a.Case.Counts },
	"case-collapsed":       func(a *model.Artifacts) string { return a.Case.Collapsed },
	"control-counts":       func(a *model.Artifacts) string { return a.Control.Counts },
	"control-collapsed":    func(a *model.Artifacts) string { return a.Control.Collapsed },
	"qc-case-counts":       func(a *model.Artifacts) string { return a.Case.QCCounts },
	"qc-case-collapsed":    func(a *model.Artifacts) string { return a.Case.QCCollapsed },
	"qc-control-counts":    func(a *model.Artifacts) string { return a.Control.QCCounts },
	"qc-control-collapsed": func(a *model.Artifacts) string { return a.Control.QCCollapsed },
}

func (app *AppContext) ResultHandler(w http.ResponseWriter, r *http.Request) {
	get, ok := resultFiles[r.PathValue("name")]
	if !ok {
		http.Error(w, "unknown result", http.StatusNotFound)
		return
	}
	_, a, err := app.Store.GetProjectArtifacts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	file := get(a)
	if file == "" {
		http.Error(w, "result not available yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	http.ServeFile(w, r, file)
}
