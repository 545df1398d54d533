package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yumyai/varenrich/internal/util"
	"github.com/yumyai/varenrich/pkg/middle"
	"github.com/yumyai/varenrich/pkg/model"
)

const maxUploadMemory = 64 << 20

// UploadFileHandler stores an uploaded call file under the project's upload
// directory and registers it. Form fields: file, sample_name, population.
func (app *AppContext) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := app.Store.GetProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	src, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = src.Close() }()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		http.Error(w, "file name is required", http.StatusBadRequest)
		return
	}
	sample := strings.TrimSpace(r.FormValue("sample_name"))
	if sample == "" {
		sample = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".vcf")
	}

	dir, err := util.EnsureDir(filepath.Join(app.ProjectsDir, id, "uploads"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dest := filepath.Join(dir, uuid.NewString()+"-"+name)
	if err := saveUpload(src, dest); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := app.Pipeline.AddFile(r.Context(), model.VariantFile{
		ProjectID:  id,
		SampleName: sample,
		Path:       dest,
		Population: strings.TrimSpace(r.FormValue("population")),
	})
	if err != nil {
		_ = os.Remove(dest)
		writeError(w, r, err)
		return
	}
	middle.Logger(r.Context()).Info("Variant file added",
		zap.String("project", id), zap.String("sample", sample), zap.Int64("size", header.Size))
	writeJSON(w, http.StatusCreated, f)
}

func saveUpload(src io.Reader, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("save upload: %w", err)
	}
	return out.Close()
}

func (app *AppContext) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := app.Store.GetProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	files, err := app.Store.ListVariantFiles(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (app *AppContext) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	fileID, err := strconv.ParseInt(r.PathValue("file_id"), 10, 64)
	if err != nil {
		http.Error(w, "file_id must be an integer", http.StatusBadRequest)
		return
	}
	if err := app.Pipeline.RemoveFile(r.Context(), r.PathValue("id"), fileID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
