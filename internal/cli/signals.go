package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// signalContext derives a context cancelled on SIGINT or SIGTERM. Child
// processes receive a terminate signal through the cancelled context and
// are awaited before the command returns.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
