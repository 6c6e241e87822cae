package main

import (
	"context"
	"log/slog"
	"os"

	"classlens-backend/cmd/classlens-cli/commands"
	"classlens-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()

	telemetry.InitSlog(true)
	tel, err := telemetry.SetupFromEnv(ctx, "classlens-cli")
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to set up telemetry", "err", err)
	}
	defer tel.Shutdown(ctx)

	commands.ExecuteContext(ctx)
}
