package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blocknode-org/blocknode/cli/blocknode/cmd"
	"github.com/blocknode-org/blocknode/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.New().Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	_ = logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
