// Package main provides the drivetidy CLI entry point.
// drivetidy finds duplicate files in cloud storage and trashes the extras.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drivetidy/drivetidy/internal/cli"
)

func main() {
	// The first interrupt stops the run after the batch in flight.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
