package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/provision/internal/models"
	"github.com/desertthunder/provision/internal/shared"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

const runColumns = `
	id, sequence, status, failed_step, exit_code, error_message,
	config_path, started_at, completed_at, created_at, updated_at
`

// RunRepository implements models.Repository[*models.Run] for provisioning history.
//
// Step outcomes live in run_steps and are written with [RunRepository.RecordSteps].
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run into the database with generated ID and sequence
func (r *RunRepository) Create(run *models.Run) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		run.ID(),
		sequence,
		run.Status(),
		nullString(run.FailedStep()),
		run.ExitCode(),
		nullString(run.ErrorMessage()),
		run.ConfigPath(),
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run and its steps by ID
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := r.scan(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	steps, err := r.ListSteps(id)
	if err != nil {
		return nil, err
	}
	run.SetSteps(steps)

	return run, nil
}

// Update writes the outcome fields of an existing run
func (r *RunRepository) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE runs
		SET status = ?, failed_step = ?, exit_code = ?, error_message = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		run.Status(),
		nullString(run.FailedStep()),
		run.ExitCode(),
		nullString(run.ErrorMessage()),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return affected(result, run.ID())
}

// Delete removes a run and its recorded steps
func (r *RunRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_steps WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run steps: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if err := affected(result, id); err != nil {
		return err
	}

	return tx.Commit()
}

// List retrieves runs matching the given criteria, newest first.
//
// Supported criteria: "status" (string) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// RecordSteps replaces the stored steps of a run with those currently on the model
func (r *RunRepository) RecordSteps(run *models.Run) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_steps WHERE run_id = ?`, run.ID()); err != nil {
		return fmt.Errorf("failed to clear run steps: %w", err)
	}

	for _, s := range run.Steps() {
		_, err := tx.Exec(
			`INSERT INTO run_steps (run_id, position, name, status, duration_ms) VALUES (?, ?, ?, ?, ?)`,
			run.ID(), s.Position, s.Name, s.Status, s.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run steps: %w", err)
	}
	return nil
}

// ListSteps returns the recorded steps of a run in execution order
func (r *RunRepository) ListSteps(runID string) ([]models.RunStep, error) {
	rows, err := r.db.Query(
		`SELECT position, name, status, duration_ms FROM run_steps WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}
	defer rows.Close()

	var steps []models.RunStep
	for rows.Next() {
		var (
			step       models.RunStep
			durationMS int64
		)
		if err := rows.Scan(&step.Position, &step.Name, &step.Status, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return steps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scan reads one runs row from either [sql.Row] or [sql.Rows]
func (r *RunRepository) scan(row scanner) (*models.Run, error) {
	var (
		id           string
		sequence     int
		status       string
		failedStep   sql.NullString
		exitCode     int
		errorMessage sql.NullString
		configPath   string
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&id, &sequence, &status, &failedStep, &exitCode, &errorMessage,
		&configPath, &startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewRun(sequence, configPath)
	run.SetID(id)
	run.SetStatus(status)
	run.SetExitCode(exitCode)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)

	if failedStep.Valid {
		run.SetFailedStep(failedStep.String)
	}
	if errorMessage.Valid {
		run.SetErrorMessage(errorMessage.String)
	}
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}

	return run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func affected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
