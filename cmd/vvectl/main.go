// Package main runs the vvectl operator CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/vvebeheer/internal/cmd/vvectl"
	entrypoint "github.com/louisbranch/vvebeheer/internal/platform/cmd"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logCfg logging.Config
	if err := entrypoint.ParseConfig(&logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "vvectl: %v\n", err)
		os.Exit(2)
	}
	err := entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCLI, entrypoint.RunOptions{Logging: logCfg}, func(ctx context.Context) error {
		return vvectl.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvectl: %v\n", err)
		os.Exit(1)
	}
}
