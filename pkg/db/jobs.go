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

// BeginJob records a running job for a stage. It fails with ErrJobRunning
// when the project already has one; the partial unique index on running jobs
// makes the check and the insert a single atomic statement. The project row
// is locked first so a concurrent reconfiguration either sees the job or
// finishes before it starts.
func (s *Store) BeginJob(ctx context.Context, projectID, name string) (*model.Job, error) {
	ts := now()
	job := &model.Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		State:     model.JobRunning,
		CreatedAt: fromMillis(ts),
		UpdatedAt: fromMillis(ts),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockProject(ctx, tx, projectID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO jobs (id, project_id, name, state, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, '', ?, ?) ON CONFLICT DO NOTHING`),
			job.ID, projectID, name, string(job.State), ts, ts)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%s on %s: %w", name, projectID, ErrJobRunning)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) finishJob(ctx context.Context, q querier, jobID string, state model.JobState, msg string) error {
	res, err := q.ExecContext(ctx, s.rebind(`UPDATE jobs SET state = ?, error = ?, updated_at = ? WHERE id = ?`),
		string(state), msg, now(), jobID)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// CommitStage stores a stage result: the new state and artifacts of the
// project and the completed job, in one transaction.
func (s *Store) CommitStage(ctx context.Context, job *model.Job, state model.State, a *model.Artifacts) error {
	artifacts, err := json.Marshal(a)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE projects SET state = ?, artifacts = ?, updated_at = ? WHERE id = ?`),
			string(state), string(artifacts), now(), job.ProjectID)
		if err != nil {
			return fmt.Errorf("update project %s: %w", job.ProjectID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("project %s: %w", job.ProjectID, ErrNotFound)
		}
		return s.finishJob(ctx, tx, job.ID, model.JobDone, "")
	})
	if err != nil {
		return err
	}
	job.State = model.JobDone
	return nil
}

// FailStage puts the project back into its pre-stage state and marks the job
// as failed. Artifacts are left untouched. An empty restore keeps the
// current state.
func (s *Store) FailStage(ctx context.Context, job *model.Job, restore model.State, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if restore != "" {
			if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE projects SET state = ?, updated_at = ? WHERE id = ?`),
				string(restore), now(), job.ProjectID); err != nil {
				return err
			}
		}
		return s.finishJob(ctx, tx, job.ID, model.JobError, msg)
	})
	if err != nil {
		return err
	}
	job.State = model.JobError
	job.Error = msg
	return nil
}

// DiscardJob removes a running job that did no work.
func (s *Store) DiscardJob(ctx context.Context, job *model.Job) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM jobs WHERE id = ? AND state = ?`), job.ID, string(model.JobRunning))
	if err != nil {
		return fmt.Errorf("discard job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("running job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

// ListJobs returns the jobs of a project, newest first.
func (s *Store) ListJobs(ctx context.Context, projectID string) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, project_id, name, state, error, created_at, updated_at
		FROM jobs WHERE project_id = ? ORDER BY created_at DESC, id`), projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Job
	for rows.Next() {
		var (
			j                model.Job
			state            string
			created, updated int64
		)
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Name, &state, &j.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		j.State = model.JobState(state)
		j.CreatedAt = fromMillis(created)
		j.UpdatedAt = fromMillis(updated)
		out = append(out, j)
	}
	return out, rows.Err()
}

// AbandonRunningJobs marks every job still recorded as running as failed and
// moves its project back to the state the stage started from. Called once
// at startup, before any dispatcher runs.
func (s *Store) AbandonRunningJobs(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT j.id, j.project_id, p.state FROM jobs j
		JOIN projects p ON p.id = j.project_id WHERE j.state = ?`), string(model.JobRunning))
	if err != nil {
		return 0, err
	}
	type stale struct {
		job, project string
		state        model.State
	}
	var found []stale
	for rows.Next() {
		var st stale
		var state string
		if err := rows.Scan(&st.job, &st.project, &state); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan: %w", err)
		}
		st.state = model.State(state)
		found = append(found, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, st := range found {
		job := &model.Job{ID: st.job, ProjectID: st.project}
		if err := s.FailStage(ctx, job, model.Interrupted(st.state), errInterrupted); err != nil {
			return 0, err
		}
	}
	return len(found), nil
}

var errInterrupted = errors.New("interrupted by restart")
