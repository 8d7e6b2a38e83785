package cli

import (
	"github.com/spf13/cobra"

	"budgetfx/internal/alerting"
)

var simulateKind string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a sample degraded-refresh alert through the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), alerting.Kind(simulateKind))
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateKind, "kind", string(alerting.KindStale), "Alert kind: stale or failed")
}
