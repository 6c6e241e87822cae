package commands

import (
	"fmt"
	"os"

	"classlens-backend/lib/authflow"
	"classlens-backend/lib/browser"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(authCmd)
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Verifies that an authenticated console session can be established.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		orchestrator := authflow.NewOrchestrator(browser.NewFactory(browser.FactoryOptions{}))
		result := orchestrator.Authenticate(cmd.Context(), authflow.SessionConfig{
			Identity: authflow.Identity{
				Email:    cfg.Acely.Email,
				Password: cfg.Acely.Password,
			},
			Headless:        cfg.Acely.Headless,
			EntryURL:        "https://app.acely.ai/sign-in",
			VerificationURL: "https://app.acely.ai/team/admin-console",
		})

		fmt.Println("outcome:", result.Outcome)
		fmt.Println("attempts used:", result.AttemptsUsed)
		fmt.Println("final location:", result.FinalLocation)

		if result.Outcome != authflow.OutcomeAuthenticated {
			if result.Err != nil {
				fmt.Fprintln(os.Stderr, result.Err)
			}
			os.Exit(1)
		}
		result.Session.Quit()
	},
}
