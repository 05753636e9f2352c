package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/computerscienceiscool/llm-autorun/pkg/cli"
)

func main() {
	// Interrupt cancels the running command's process group and ends the run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
