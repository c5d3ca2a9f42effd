package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/shared"
	"github.com/desertthunder/provision/internal/tasks"
	"github.com/desertthunder/provision/internal/ui"
	"github.com/urfave/cli/v3"
)

// stepBuilder creates the steps of a run for the given config and logger.
type stepBuilder func(cfg *shared.Config, logger *log.Logger) []tasks.Step

// Provision runs install, collectstatic, makemigrations and migrate in order.
func (r *Runner) Provision(ctx context.Context, cmd *cli.Command) error {
	return r.run(ctx, cmd, tasks.Provision)
}

// Install runs only the dependency installation step.
func (r *Runner) Install(ctx context.Context, cmd *cli.Command) error {
	return r.run(ctx, cmd, single(tasks.InstallStep))
}

// CollectStatic runs only the static collection step.
func (r *Runner) CollectStatic(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("clear") && r.config != nil {
		r.config.Static.Clear = true
	}
	return r.run(ctx, cmd, single(tasks.CollectStaticStep))
}

// MakeMigrations generates a migration descriptor, or prints what it would contain with --dry-run.
func (r *Runner) MakeMigrations(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("dry-run") {
		return r.run(ctx, cmd, single(tasks.MakeMigrationsStep))
	}

	cfg, err := r.validConfig()
	if err != nil {
		return err
	}

	result, err := tasks.GenerateMigrations(cfg, r.logger, true)
	if err != nil {
		return shared.NewStepError(shared.ErrMigrationGeneration, tasks.StepMakeMigrations, err)
	}
	if result.Descriptor == nil {
		return r.writePlain("No changes detected\n")
	}

	r.writePlain("Migrations for '%s':\n", result.Descriptor.App)
	r.writePlain("  %s\n", result.Path)
	for _, op := range result.Descriptor.Operations {
		r.writePlain("    - %s\n", op.Describe())
	}
	return nil
}

// Migrate runs only the migration apply step.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	return r.run(ctx, cmd, single(tasks.MigrateStep))
}

// ShowMigrations lists every migration with an [X] when it has been applied.
func (r *Runner) ShowMigrations(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.validConfig()
	if err != nil {
		return err
	}

	executor, closeDB, err := tasks.OpenExecutor(ctx, cfg, r.logger)
	if err != nil {
		return err
	}
	defer closeDB()

	statuses, err := executor.Show(ctx)
	if err != nil {
		return err
	}

	r.writePlain("%s\n", cfg.Project.App)
	if len(statuses) == 0 {
		return r.writePlain(" (no migrations)\n")
	}
	for _, s := range statuses {
		mark := " "
		if s.Applied {
			mark = "X"
		}
		r.writePlain(" [%s] %s\n", mark, s.Name)
	}
	return nil
}

// SQLMigrate prints the statements a migration runs against the configured database engine.
func (r *Runner) SQLMigrate(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: migration name", shared.ErrMissingArgument)
	}

	cfg, err := r.validConfig()
	if err != nil {
		return err
	}

	executor, err := tasks.OfflineExecutor(cfg, r.logger)
	if err != nil {
		return err
	}

	statements, err := executor.SQLFor(name)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		r.writePlain("%s;\n", strings.TrimSuffix(stmt, ";"))
	}
	return nil
}

// run executes the steps built by build, reporting progress to the terminal and recording the
// outcome in the state database.
func (r *Runner) run(ctx context.Context, cmd *cli.Command, build stepBuilder) error {
	cfg, err := r.validConfig()
	if err != nil {
		return err
	}

	logger := r.logger
	useTUI := cmd.Bool("tui")
	if useTUI {
		// log lines would tear the progress view
		fileLogger, closeLog, err := shared.NewFileLogger(r.logPath())
		if err != nil {
			return err
		}
		defer closeLog()
		fileLogger.SetLevel(r.logger.GetLevel())
		logger = fileLogger
	}

	history := r.startRun(ctx, logger)

	seq := tasks.NewSequencer(logger, build(cfg, logger)...)

	var result *tasks.Result
	if useTUI {
		model := ui.NewModel(ctx, "Provisioning "+cfg.Project.App, seq)
		if _, perr := tea.NewProgram(model).Run(); perr != nil {
			return fmt.Errorf("error running TUI: %w", perr)
		}
		result, err = model.Result()
	} else {
		progress := make(chan tasks.ProgressUpdate, 50)
		printer := ui.NewPrinter(r.output, cmd.Bool("verbose"))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			printer.Consume(progress)
		}()

		result, err = seq.Run(ctx, progress)
		close(progress)
		wg.Wait()
	}

	history.finish(result, err)
	r.writePlain("%s\n", ui.Summary(result, err))
	return err
}

// logPath places the TUI log file next to the state database.
func (r *Runner) logPath() string {
	return filepath.Join(filepath.Dir(r.config.Path(r.config.State.Path)), "provision.log")
}

// single adapts a one-step constructor to a [stepBuilder].
func single(step func(*shared.Config, *log.Logger) tasks.Step) stepBuilder {
	return func(cfg *shared.Config, logger *log.Logger) []tasks.Step {
		return []tasks.Step{step(cfg, logger)}
	}
}
