// Handler for miscellaneous endpoints such as health check

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yumyai/varenrich/internal/util"
	"github.com/yumyai/varenrich/pkg/db"
	"github.com/yumyai/varenrich/pkg/handler/types"
	"github.com/yumyai/varenrich/pkg/middle"
	"github.com/yumyai/varenrich/pkg/model"
)

type HealthResponse struct {
	Health    string    `json:"health"`
	Timestamp time.Time `json:"timestamp"`
}

func (app *AppContext) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Health:    "ok",
		Timestamp: time.Now(),
	}
	status := http.StatusOK
	if err := app.Store.DB().PingContext(r.Context()); err != nil {
		middle.Logger(r.Context()).Error("Database ping failed", zap.Error(err))
		response.Health = "database unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (app *AppContext) ListBackgroundSetsHandler(w http.ResponseWriter, r *http.Request) {
	sets, err := app.Store.ListBackgroundSets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// PutBackgroundSetHandler registers or replaces a reference cohort. The
// files must already be readable by the server.
func (app *AppContext) PutBackgroundSetHandler(w http.ResponseWriter, r *http.Request) {
	var b model.BackgroundSet
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	b.Name = r.PathValue("name")
	if b.File == "" || b.Population == "" {
		http.Error(w, "file and population are required", http.StatusBadRequest)
		return
	}
	if !util.FileExists(b.File) || !util.FileExists(b.Population) {
		http.Error(w, "background files are not readable by the server", http.StatusBadRequest)
		return
	}
	if err := app.Store.PutBackgroundSet(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrJobRunning), errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInvalidConfig):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		middle.Logger(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, types.ErrorResponse{Error: err.Error(), RequestID: middle.RequestID(r.Context())})
}
