package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yumyai/varenrich/pkg/middle"
)

func NewRouter(app *AppContext) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", app.HealthCheck)
	if app.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(app.Gatherer, promhttp.HandlerOpts{}))
	}

	// Reference cohorts
	mux.HandleFunc("GET /api/v1/backgrounds", app.ListBackgroundSetsHandler)
	mux.HandleFunc("PUT /api/v1/backgrounds/{name}", app.PutBackgroundSetHandler)

	// Projects
	mux.HandleFunc("POST /api/v1/projects", app.CreateProjectHandler)
	mux.HandleFunc("GET /api/v1/projects", app.ListProjectsHandler)
	mux.HandleFunc("GET /api/v1/projects/{id}", app.ProjectStatusHandler)
	mux.HandleFunc("PUT /api/v1/projects/{id}/config", app.UpdateConfigHandler)
	mux.HandleFunc("GET /api/v1/projects/{id}/files", app.ListFilesHandler)
	mux.HandleFunc("POST /api/v1/projects/{id}/files", app.UploadFileHandler)
	mux.HandleFunc("DELETE /api/v1/projects/{id}/files/{file_id}", app.DeleteFileHandler)
	mux.HandleFunc("POST /api/v1/projects/{id}/process", app.ProcessHandler)
	mux.HandleFunc("POST /api/v1/projects/{id}/check-scores", app.CheckScoresHandler)
	mux.HandleFunc("GET /api/v1/projects/{id}/jobs", app.ListJobsHandler)
	mux.HandleFunc("GET /api/v1/projects/{id}/results/{name}", app.ResultHandler)

	return middle.Chain(mux, middle.RequestIDMiddleware, middle.LoggingMiddleware)
}
