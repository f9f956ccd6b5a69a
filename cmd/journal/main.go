package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trade-journal/internal/cli"
	"trade-journal/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(logger).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
