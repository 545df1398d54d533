package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yumyai/varenrich/pkg/model"
)

const projectColumns = `id, title, state, config, artifacts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, *model.Artifacts, error) {
	var (
		p                 model.Project
		state             string
		config, artifacts string
		created, updated  int64
	)
	if err := row.Scan(&p.ID, &p.Title, &state, &config, &artifacts, &created, &updated); err != nil {
		return nil, nil, err
	}
	p.State = model.State(state)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
		return nil, nil, fmt.Errorf("decode config of %s: %w", p.ID, err)
	}
	var a model.Artifacts
	if err := json.Unmarshal([]byte(artifacts), &a); err != nil {
		return nil, nil, fmt.Errorf("decode artifacts of %s: %w", p.ID, err)
	}
	return &p, &a, nil
}

func (s *Store) getProject(ctx context.Context, q querier, id string) (*model.Project, *model.Artifacts, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	p, a, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, a, err
}

// lockProjectQuery selects a project row. On Postgres the row is locked until
// the transaction ends so that job starts and reconfigurations of the same
// project serialize; SQLite runs on a single connection and needs no lock.
func (s *Store) lockProjectQuery() string {
	q := `SELECT id FROM projects WHERE id = ?`
	if s.driver == DriverPostgres {
		q += ` FOR UPDATE`
	}
	return s.rebind(q)
}

func (s *Store) lockProject(ctx context.Context, q querier, id string) error {
	var got string
	err := q.QueryRowContext(ctx, s.lockProjectQuery(), id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return err
}

func (s *Store) saveProject(ctx context.Context, q querier, p *model.Project, a *model.Artifacts) error {
	config, err := json.Marshal(p.Config)
	if err != nil {
		return err
	}
	artifacts, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ts := now()
	res, err := q.ExecContext(ctx, s.rebind(`UPDATE projects SET title = ?, state = ?, config = ?, artifacts = ?, updated_at = ? WHERE id = ?`),
		p.Title, string(p.State), string(config), string(artifacts), ts, p.ID)
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = fromMillis(ts)
	return nil
}

func (s *Store) hasRunningJob(ctx context.Context, q querier, projectID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM jobs WHERE project_id = ? AND state = ?`),
		projectID, string(model.JobRunning)).Scan(&n)
	return n > 0, err
}

// CreateProject stores a new project in the initial state.
func (s *Store) CreateProject(ctx context.Context, title string, cfg model.ProjectConfig) (*model.Project, error) {
	config, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	artifacts, err := json.Marshal(model.Artifacts{})
	if err != nil {
		return nil, err
	}

	ts := now()
	p := &model.Project{
		ID:        uuid.NewString(),
		Title:     title,
		State:     model.StateInitial,
		Config:    cfg,
		CreatedAt: fromMillis(ts),
		UpdatedAt: fromMillis(ts),
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Title, string(p.State), string(config), string(artifacts), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, _, err := s.getProject(ctx, s.db, id)
	return p, err
}

// GetProjectArtifacts returns a project together with its current working set.
func (s *Store) GetProjectArtifacts(ctx context.Context, id string) (*model.Project, *model.Artifacts, error) {
	return s.getProject(ctx, s.db, id)
}

func (s *Store) ListProjects(ctx context.Context) ([]*model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Project
	for rows.Next() {
		p, _, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateConfig replaces a project's configuration. Filtering has to be
// redone, so the project falls back to "annotated" (unless it never got that
// far) and a new artifact generation is started that keeps only the
// annotated case file. The previous artifacts are returned so the caller can
// remove their files.
func (s *Store) UpdateConfig(ctx context.Context, id string, cfg model.ProjectConfig) (*model.Project, *model.Artifacts, error) {
	var (
		project *model.Project
		prev    model.Artifacts
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockProject(ctx, tx, id); err != nil {
			return err
		}
		running, err := s.hasRunningJob(ctx, tx, id)
		if err != nil {
			return err
		}
		p, a, err := s.getProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if running {
			return fmt.Errorf("reconfigure %s: %w", id, ErrJobRunning)
		}
		prev = *a
		p.Config = cfg
		p.State = model.ResetForConfig(p.State)
		a.ResetDownstream()
		project = p
		return s.saveProject(ctx, tx, p, a)
	})
	if err != nil {
		return nil, nil, err
	}
	return project, &prev, nil
}

// resetForFiles sends a project back to "initial" with an empty artifact
// generation. Used whenever the variant file set changes.
func (s *Store) resetForFiles(ctx context.Context, tx *sql.Tx, projectID string) (*model.Artifacts, error) {
	if err := s.lockProject(ctx, tx, projectID); err != nil {
		return nil, err
	}
	running, err := s.hasRunningJob(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	p, a, err := s.getProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("change files of %s: %w", projectID, ErrJobRunning)
	}
	prev := *a
	p.State = model.ResetForFiles(p.State)
	a.ResetAll()
	if err := s.saveProject(ctx, tx, p, a); err != nil {
		return nil, err
	}
	return &prev, nil
}

// SetState moves a project into the intermediate state of a stage that is
// about to run.
func (s *Store) SetState(ctx context.Context, id string, state model.State) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE projects SET state = ?, updated_at = ? WHERE id = ?`),
		string(state), now(), id)
	if err != nil {
		return fmt.Errorf("set state of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}
