package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/shared"
	"github.com/urfave/cli/v3"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "provision.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from --config when the command runs.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// Before loads the configuration, applies PROVISION_* overrides and sets the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.config == nil {
		config, err := r.loadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}
	r.config.ApplyEnv()

	level := cmd.String("log-level")
	if level == "" {
		level = r.config.Log.Level
	}
	if level != "" && !shared.SetLogLevelString(r.logger, level) {
		return ctx, fmt.Errorf("%w: unknown log level %q", shared.ErrInvalidArgument, level)
	}

	return ctx, nil
}

// loadConfig reads path, falling back to defaults when the file does not exist.
func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	if path == "" {
		return shared.DefaultConfig(), nil
	}

	config, err := shared.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return shared.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	r.logger.Debug("loaded config", "path", path)
	return config, nil
}

// validConfig returns the loaded configuration after validating it.
func (r *Runner) validConfig() (*shared.Config, error) {
	if r.config == nil {
		return nil, shared.ErrMissingConfig
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	return r.config, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
