package deps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/shared"
)

// StepName identifies dependency installation in errors and progress output.
const StepName = "install"

// ManifestPlaceholder in an installer argument is replaced with the absolute manifest path.
const ManifestPlaceholder = "{manifest}"

// exitNotFound is the shell convention for "command not found".
const exitNotFound = 127

// DefaultCommand installs a pip requirements file.
var DefaultCommand = []string{"pip", "install", "-r", ManifestPlaceholder}

// Installer runs the package installer against a manifest.
type Installer struct {
	// Command is the installer argv; [DefaultCommand] when empty.
	Command []string
	// Dir is the working directory of the installer process.
	Dir    string
	Logger *log.Logger
}

// InstallResult summarizes a successful install.
type InstallResult struct {
	Requirements []Requirement
	Args         []string
}

// Install validates the manifest and runs the installer, streaming its output to the logger.
//
// Failures are [shared.StepError]s of kind [shared.ErrDependencyResolution]. A non-zero installer
// exit is carried as the error's exit code; a missing installer binary exits 127.
func (i *Installer) Install(ctx context.Context, manifest string) (*InstallResult, error) {
	abs, err := filepath.Abs(manifest)
	if err != nil {
		return nil, shared.NewStepError(shared.ErrDependencyResolution, StepName, err)
	}

	reqs, err := ParseManifest(abs)
	if err != nil {
		return nil, shared.NewStepError(shared.ErrDependencyResolution, StepName, err)
	}
	i.logger().Info("installing dependencies", "manifest", manifest, "requirements", len(reqs))

	args := i.args(abs)
	if err := i.run(ctx, args); err != nil {
		return nil, err
	}

	return &InstallResult{Requirements: reqs, Args: args}, nil
}

func (i *Installer) args(manifest string) []string {
	command := i.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	args := make([]string, len(command))
	for n, arg := range command {
		args[n] = strings.ReplaceAll(arg, ManifestPlaceholder, manifest)
	}
	return args
}

func (i *Installer) run(ctx context.Context, args []string) error {
	logger := i.logger()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = i.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return shared.NewStepError(shared.ErrDependencyResolution, StepName, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return shared.NewStepError(shared.ErrDependencyResolution, StepName, err)
	}

	if err := cmd.Start(); err != nil {
		stepErr := shared.NewStepError(shared.ErrDependencyResolution, StepName, fmt.Errorf("failed to start %s: %w", args[0], err))
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			stepErr.ExitCode = exitNotFound
		}
		return stepErr
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go stream(&wg, stdout, func(line string) { logger.Info(line, "stream", "stdout") })
	go stream(&wg, stderr, func(line string) { logger.Warn(line, "stream", "stderr") })
	wg.Wait()

	err = cmd.Wait()
	if err == nil {
		return nil
	}

	stepErr := shared.NewStepError(shared.ErrDependencyResolution, StepName, fmt.Errorf("%s: %w", strings.Join(args, " "), err))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		stepErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		stepErr.Err = fmt.Errorf("installer interrupted: %w", ctxErr)
	}
	return stepErr
}

// stream forwards r line by line until EOF.
func stream(wg *sync.WaitGroup, r io.Reader, emit func(string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			emit(line)
		}
	}
}

func (i *Installer) logger() *log.Logger {
	if i.Logger == nil {
		return log.New(io.Discard)
	}
	return shared.WithLogger(i.Logger, "step", StepName)
}
