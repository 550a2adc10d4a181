// Package main provides the entry point for the minerva session client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"minerva/internal/cli/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.App().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
