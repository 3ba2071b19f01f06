// Command simulate plays threat scenarios against a running service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/guardline/internal/simulate"
	"github.com/okian/guardline/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := simulate.NewCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
