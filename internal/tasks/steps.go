package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/deps"
	"github.com/desertthunder/provision/internal/migrate"
	"github.com/desertthunder/provision/internal/schema"
	"github.com/desertthunder/provision/internal/shared"
	"github.com/desertthunder/provision/internal/static"
)

// Step names, also used as CLI subcommand names.
const (
	StepInstall        = deps.StepName
	StepCollectStatic  = static.StepName
	StepMakeMigrations = "makemigrations"
	StepMigrate        = "migrate"
)

// Provision returns the full provisioning sequence for cfg: install, collectstatic,
// makemigrations, migrate.
func Provision(cfg *shared.Config, logger *log.Logger) []Step {
	return []Step{
		InstallStep(cfg, logger),
		CollectStaticStep(cfg, logger),
		MakeMigrationsStep(cfg, logger),
		MigrateStep(cfg, logger),
	}
}

// InstallStep installs the packages listed in the dependency manifest.
func InstallStep(cfg *shared.Config, logger *log.Logger) Step {
	return Step{
		Name:  StepInstall,
		Title: "Installing dependencies",
		Phase: Install,
		Kind:  shared.ErrDependencyResolution,
		Run: func(ctx context.Context, report Report) error {
			installer := &deps.Installer{
				Command: cfg.Dependencies.Installer,
				Dir:     cfg.Path("."),
				Logger:  logger,
			}
			result, err := installer.Install(ctx, cfg.Path(cfg.Dependencies.Manifest))
			if err != nil {
				return err
			}
			n := len(result.Requirements)
			report(fmt.Sprintf("%d %s installed", n, shared.Plural(n, "requirement")))
			return nil
		},
	}
}

// CollectStaticStep copies static assets into the serving directory.
func CollectStaticStep(cfg *shared.Config, logger *log.Logger) Step {
	return Step{
		Name:  StepCollectStatic,
		Title: "Collecting static files",
		Phase: CollectStatic,
		Kind:  shared.ErrStaticCollection,
		Run: func(ctx context.Context, report Report) error {
			collector := &static.Collector{
				Sources: cfg.StaticSources(),
				Output:  cfg.Path(cfg.Static.Output),
				Clear:   cfg.Static.Clear,
				Logger:  logger,
				OnProgress: func(s static.Stats) {
					report(fmt.Sprintf("%d %s processed", s.Total(), shared.Plural(s.Total(), "file")))
				},
			}
			stats, err := collector.Collect(ctx)
			if err != nil {
				return err
			}
			report(fmt.Sprintf("%d copied, %d unmodified, %d skipped", stats.Copied, stats.Unmodified, stats.Skipped))
			return nil
		},
	}
}

// MakeMigrationsStep writes a migration descriptor when the declared models changed.
func MakeMigrationsStep(cfg *shared.Config, logger *log.Logger) Step {
	return Step{
		Name:  StepMakeMigrations,
		Title: "Generating migrations",
		Phase: MakeMigrations,
		Kind:  shared.ErrMigrationGeneration,
		Run: func(ctx context.Context, report Report) error {
			result, err := GenerateMigrations(cfg, logger, false)
			if err != nil {
				return err
			}
			if result.Descriptor == nil {
				report("No changes detected")
				return nil
			}
			for _, op := range result.Descriptor.Operations {
				report(fmt.Sprintf("%s: %s", result.Descriptor.Name, op.Describe()))
			}
			return nil
		},
	}
}

// MigrateStep applies pending migrations to the target database.
func MigrateStep(cfg *shared.Config, logger *log.Logger) Step {
	return Step{
		Name:  StepMigrate,
		Title: "Applying migrations",
		Phase: Migrate,
		Kind:  shared.ErrMigrationApply,
		Run: func(ctx context.Context, report Report) error {
			executor, closeDB, err := OpenExecutor(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := executor.Apply(ctx)
			if err != nil {
				return err
			}
			if len(result.Applied) == 0 {
				report("No migrations to apply")
			}
			for _, name := range result.Applied {
				report("Applied " + name)
			}
			return nil
		},
	}
}

// GenerateMigrations loads the declared models and runs the migration generator.
func GenerateMigrations(cfg *shared.Config, logger *log.Logger, dryRun bool) (*migrate.GenerateResult, error) {
	declared, err := schema.Load(cfg.Path(cfg.Project.Models))
	if err != nil {
		return nil, err
	}
	if cfg.Project.App != "" && declared.App != cfg.Project.App {
		return nil, fmt.Errorf("%w: models declare app %q but project.app is %q", shared.ErrInvalidConfig, declared.App, cfg.Project.App)
	}

	g := &migrate.Generator{
		Dir:    cfg.Path(cfg.Project.MigrationsDir),
		Logger: stepLogger(logger, StepMakeMigrations),
		DryRun: dryRun,
	}
	return g.Generate(declared)
}

// OpenExecutor connects to the target database and returns an executor for the project's migrations.
// The returned func closes the connection.
func OpenExecutor(ctx context.Context, cfg *shared.Config, logger *log.Logger) (*migrate.Executor, func() error, error) {
	executor, err := OfflineExecutor(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	db, err := shared.OpenDatabase(ctx, cfg.TargetDatabase())
	if err != nil {
		return nil, nil, err
	}
	executor.DB = db
	return executor, db.Close, nil
}

// OfflineExecutor returns an executor without a database connection, enough to render SQL.
func OfflineExecutor(cfg *shared.Config, logger *log.Logger) (*migrate.Executor, error) {
	dialect, err := migrate.NewDialect(cfg.TargetDatabase().Driver)
	if err != nil {
		return nil, err
	}
	return &migrate.Executor{
		Dialect: dialect,
		Dir:     cfg.Path(cfg.Project.MigrationsDir),
		App:     cfg.Project.App,
		Logger:  stepLogger(logger, StepMigrate),
	}, nil
}

func stepLogger(logger *log.Logger, step string) *log.Logger {
	if logger == nil {
		return nil
	}
	return shared.WithLogger(logger, "step", step)
}
