package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/yumyai/varenrich/logger"
	"github.com/yumyai/varenrich/pkg/model"
)

// Reconfigure stores a new configuration. Everything downstream of the
// annotated case file is discarded.
func (o *Orchestrator) Reconfigure(ctx context.Context, projectID string, cfg model.ProjectConfig) (*model.Project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, prev, err := o.store.UpdateConfig(ctx, projectID, cfg)
	if err != nil {
		return nil, err
	}
	o.remove(prev.Dir(o.opts.ProjectsDir, projectID))
	return p, nil
}

// AddFile registers an uploaded call file and discards all artifacts.
func (o *Orchestrator) AddFile(ctx context.Context, f model.VariantFile) (*model.VariantFile, error) {
	added, prev, err := o.store.AddVariantFile(ctx, f)
	if err != nil {
		return nil, err
	}
	o.discard(f.ProjectID, prev)
	return added, nil
}

// RemoveFile unregisters a call file, deletes it and discards all artifacts.
func (o *Orchestrator) RemoveFile(ctx context.Context, projectID string, fileID int64) error {
	removed, prev, err := o.store.RemoveVariantFile(ctx, projectID, fileID)
	if err != nil {
		return err
	}
	o.remove(removed.Path)
	o.discard(projectID, prev)
	return nil
}

// discard removes the files of an artifact generation including its
// assembly.
func (o *Orchestrator) discard(projectID string, prev *model.Artifacts) {
	o.remove(prev.Dir(o.opts.ProjectsDir, projectID))
	if prev.Annotated != "" {
		o.remove(filepath.Dir(prev.Annotated))
	}
}

// remove deletes a file or directory below the projects root. Anything
// outside of it is left alone.
func (o *Orchestrator) remove(path string) {
	root := filepath.Clean(o.opts.ProjectsDir)
	if rel, err := filepath.Rel(root, path); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		logger.Warn("Could not remove project files", zap.String("path", path), zap.Error(err))
	}
}
