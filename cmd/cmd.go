// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// command builds the root command. Running it without a subcommand performs a full provisioning run.
func (r *Runner) command() *cli.Command {
	return &cli.Command{
		Name:    "provision",
		Usage:   "Prepare the netflixclone application for serving",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   DefaultConfigPath,
				Sources: cli.EnvVars("PROVISION_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print step messages as well as step outcomes",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show an interactive progress view",
			},
		},
		Before: r.Before,
		Action: r.Provision,
		Commands: []*cli.Command{
			installCommand(r),
			collectStaticCommand(r),
			makeMigrationsCommand(r),
			migrateCommand(r),
			showMigrationsCommand(r),
			sqlMigrateCommand(r),
			historyCommand(r),
			initCommand(r),
		},
	}
}

func installCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "install",
		Usage:  "Install packages from the dependency manifest",
		Action: r.Install,
	}
}

func collectStaticCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "collectstatic",
		Usage: "Copy static assets into the serving directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Empty the serving directory before copying",
			},
		},
		Action: r.CollectStatic,
	}
}

func makeMigrationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "makemigrations",
		Usage: "Write a migration descriptor for changed models",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be generated without writing it",
			},
		},
		Action: r.MakeMigrations,
	}
}

func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Apply pending migrations to the target database",
		Action: r.Migrate,
	}
}

func showMigrationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "showmigrations",
		Usage:  "List migrations and whether they are applied",
		Action: r.ShowMigrations,
	}
}

func sqlMigrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sqlmigrate",
		Usage: "Print the SQL a migration would run",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "name",
			},
		},
		Action: r.SQLMigrate,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List previous provisioning runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show runs with this status (running, succeeded, failed)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text, json, csv, markdown)",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the export to a file instead of stdout",
			},
		},
		Action: r.History,
	}
}

func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write a default configuration file and initialize the state database",
		Action: r.Init,
	}
}
