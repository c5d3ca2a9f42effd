package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/provision/internal/shared"
	"github.com/urfave/cli/v3"
)

// Init writes the default configuration file when missing and initializes the state database.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("config file exists, leaving it untouched", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		config.ApplyEnv()
		r.config = config
		r.writePlain("✓ Wrote %s\n", configPath)
	}

	statePath := r.config.Path(r.config.State.Path)
	r.logger.Info("initializing state database", "path", statePath)

	db, err := r.openState(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize state database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for state database: %v", statePath)
	r.writePlain("✓ State database ready at %s\n", statePath)
	return nil
}
