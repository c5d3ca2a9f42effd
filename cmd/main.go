package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/provision/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnvFile(".env"); err != nil {
		logger.Warn("ignoring env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	runner := NewRunner(RunnerOpts{Logger: logger})
	err := runner.command().Run(ctx, os.Args)
	stop()

	if err != nil {
		logger.Error("provisioning failed", "error", err)
	}
	os.Exit(shared.ExitCode(err))
}
