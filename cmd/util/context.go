package util

import (
	"context"
	"os"
	"syscall"

	"github.com/prospector-bot/prospector/pkg/system"
)

type contextKey struct {
	name string
}

var SystemManagerKey = contextKey{name: "context key for storing the system manager"}

// ShutdownSignals are the signals that stop a running agent cleanly.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func GetCleanupManager(ctx context.Context) *system.CleanupManager {
	return ctx.Value(SystemManagerKey).(*system.CleanupManager)
}
