package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/formatter"
	"github.com/desertthunder/provision/internal/models"
	"github.com/desertthunder/provision/internal/repositories"
	"github.com/desertthunder/provision/internal/shared"
	"github.com/desertthunder/provision/internal/tasks"
	"github.com/urfave/cli/v3"
)

// runHistory records one run in the state database. A nil runHistory records nothing.
type runHistory struct {
	db     *sql.DB
	repo   *repositories.RunRepository
	run    *models.Run
	logger *log.Logger
}

// openState opens the state database and brings its schema up to date.
func (r *Runner) openState(ctx context.Context) (*sql.DB, error) {
	path := r.config.Path(r.config.State.Path)
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// startRun creates a running record. History is best effort: failures are logged and the run proceeds.
func (r *Runner) startRun(ctx context.Context, logger *log.Logger) *runHistory {
	db, err := r.openState(ctx)
	if err != nil {
		logger.Warn("run history disabled", "error", err)
		return nil
	}

	repo := repositories.NewRunRepository(db)
	run := models.NewRun(0, r.configPath)
	if err := repo.Create(run); err != nil {
		logger.Warn("failed to record run", "error", err)
		db.Close()
		return nil
	}

	logger.Debug("recording run", "id", run.ID(), "sequence", run.Sequence())
	return &runHistory{db: db, repo: repo, run: run, logger: logger}
}

// finish stores the outcome and per-step results, then closes the state database.
func (h *runHistory) finish(result *tasks.Result, err error) {
	if h == nil {
		return
	}
	defer h.db.Close()

	var failedStep, msg string
	if result != nil {
		for i, s := range result.Steps {
			h.run.AddStep(models.RunStep{
				Position: i + 1,
				Name:     s.Name,
				Status:   string(s.Status),
				Duration: s.Duration,
			})
		}
		if result.Failed != nil {
			failedStep = result.Failed.Name
		}
	}
	if err != nil {
		msg = err.Error()
	}
	h.run.Finish(shared.ExitCode(err), failedStep, msg)

	if err := h.repo.Update(h.run); err != nil {
		h.logger.Warn("failed to record run outcome", "error", err)
		return
	}
	if err := h.repo.RecordSteps(h.run); err != nil {
		h.logger.Warn("failed to record run steps", "error", err)
	}
}

// historyEntry is the JSON form of a recorded run.
type historyEntry struct {
	Sequence   int           `json:"sequence"`
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	FailedStep string        `json:"failed_step,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   string        `json:"duration,omitempty"`
	Steps      []historyStep `json:"steps"`
}

type historyStep struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

func newHistoryEntry(run *models.Run) historyEntry {
	entry := historyEntry{
		Sequence:   run.Sequence(),
		ID:         run.ID(),
		Status:     run.Status(),
		ExitCode:   run.ExitCode(),
		FailedStep: run.FailedStep(),
		Error:      run.ErrorMessage(),
		StartedAt:  run.StartedAt(),
		Steps:      []historyStep{},
	}
	if run.CompletedAt() != nil {
		entry.Duration = run.Duration().Round(time.Millisecond).String()
	}
	for _, s := range run.Steps() {
		entry.Steps = append(entry.Steps, historyStep{
			Name:     s.Name,
			Status:   s.Status,
			Duration: s.Duration.Round(time.Millisecond).String(),
		})
	}
	return entry
}

// History lists previous runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	status := cmd.String("status")
	switch status {
	case "", models.RunRunning, models.RunSucceeded, models.RunFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
	}

	var runs []*models.Run
	if _, err := os.Stat(r.config.Path(r.config.State.Path)); err == nil {
		db, err := r.openState(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repositories.NewRunRepository(db)
		runs, err = repo.List(map[string]any{"status": status, "limit": int(cmd.Int("limit"))})
		if err != nil {
			return err
		}
		for _, run := range runs {
			steps, err := repo.ListSteps(run.ID())
			if err != nil {
				return err
			}
			run.SetSteps(steps)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat state database: %w", err)
	}

	format := cmd.String("format")
	if format == "json" {
		entries := make([]historyEntry, 0, len(runs))
		for _, run := range runs {
			entries = append(entries, newHistoryEntry(run))
		}
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(runs, format, path); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		r.logger.Info("history exported", "path", path, "runs", len(runs))
		return nil
	}

	if len(runs) == 0 && (format == "" || format == formatter.FormatText) {
		return r.writePlain("No runs recorded\n")
	}

	data, err := formatter.Export(runs, format)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if format == "" || format == formatter.FormatText {
		r.writePlainHeader("Provisioning history")
	}
	return r.writePlain("%s", data)
}
