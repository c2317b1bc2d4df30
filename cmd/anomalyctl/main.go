package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bibbank/invoice-anomaly/internal/presentation/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cli.NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, cli.ErrHighRisk):
		cancel()
		os.Exit(3)
	default:
		fmt.Fprintln(os.Stderr, "anomalyctl:", err)
		cancel()
		os.Exit(1)
	}
}
