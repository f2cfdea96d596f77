package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayo6706/ramp-orchestrator/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "ramp-orchestrator: %v\n", err)
		os.Exit(1)
	}
}
