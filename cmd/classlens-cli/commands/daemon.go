package commands

import (
	"log/slog"

	"classlens-backend/lib/telemetry"
	"classlens-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Runs scheduled scrapes of every configured platform until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := serviceutil.SignalContext()
		telemetry.InstrumentPerfStats(ctx)

		if cfg.Acely.Email != "" {
			go newAcelyService(cfg).Daemon(ctx)
			slog.Info("acely daemon started", "interval", runInterval(cfg))
		}
		if cfg.MathAcademy.Username != "" {
			go newMathAcademyService(cfg).Daemon(ctx)
			slog.Info("mathacademy daemon started", "interval", runInterval(cfg))
		}

		<-ctx.Done()
		slog.Info("shutting down")
	},
}
