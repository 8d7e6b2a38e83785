package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetfx/internal/app"
)

var (
	showLimit int
	showBase  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent rate snapshots from history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Base:  showBase,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
	showCmd.Flags().StringVar(&showBase, "base", "", "Base currency (defaults to config)")
}
