package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yumyai/varenrich/pkg/model"
)

// AddVariantFile registers an uploaded call file. Any change of the file set
// invalidates the project's artifacts; the previous ones are returned.
func (s *Store) AddVariantFile(ctx context.Context, f model.VariantFile) (*model.VariantFile, *model.Artifacts, error) {
	var prev *model.Artifacts
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = s.resetForFiles(ctx, tx, f.ProjectID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, s.rebind(`INSERT INTO variant_files (project_id, sample_name, path, population) VALUES (?, ?, ?, ?) RETURNING id`),
			f.ProjectID, f.SampleName, f.Path, f.Population).Scan(&f.ID)
	})
	if err != nil {
		return nil, nil, err
	}
	return &f, prev, nil
}

// RemoveVariantFile deletes a call file record. The file itself is left to
// the caller.
func (s *Store) RemoveVariantFile(ctx context.Context, projectID string, fileID int64) (*model.VariantFile, *model.Artifacts, error) {
	var (
		prev *model.Artifacts
		f    model.VariantFile
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT id, project_id, sample_name, path, population FROM variant_files WHERE id = ? AND project_id = ?`),
			fileID, projectID).Scan(&f.ID, &f.ProjectID, &f.SampleName, &f.Path, &f.Population)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("variant file %d: %w", fileID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if prev, err = s.resetForFiles(ctx, tx, projectID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM variant_files WHERE id = ?`), fileID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &f, prev, nil
}

func (s *Store) ListVariantFiles(ctx context.Context, projectID string) ([]model.VariantFile, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, project_id, sample_name, path, population FROM variant_files WHERE project_id = ? ORDER BY id`), projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.VariantFile
	for rows.Next() {
		var f model.VariantFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.SampleName, &f.Path, &f.Population); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
