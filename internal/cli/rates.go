package cli

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"budgetfx/internal/app"
)

var (
	ratesBase    string
	offline      bool
	formatLocale string
	compact      bool
	projectFile  string
	displayCode  string
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Refresh and print the rate table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rates(cmd.Context(), app.RatesOptions{Base: ratesBase, Offline: offline})
	},
}

var convertCmd = &cobra.Command{
	Use:     "convert AMOUNT FROM TO",
	Short:   "Convert an amount between currencies",
	Example: "  budgetfx convert 100 EUR GBP",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return getApp().Convert(cmd.Context(), app.ConvertOptions{
			Amount:  amount,
			From:    args[1],
			To:      args[2],
			Offline: offline,
		})
	},
}

var formatCmd = &cobra.Command{
	Use:   "format AMOUNT CURRENCY",
	Short: "Format an amount for display",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return getApp().Format(cmd.Context(), app.FormatOptions{
			Amount:   amount,
			Currency: args[1],
			Locale:   formatLocale,
			Compact:  compact,
		})
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project budgets and line items from a JSON file into the display currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Project(cmd.Context(), app.ProjectOptions{
			Path:    projectFile,
			Display: displayCode,
			Offline: offline,
		})
	},
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read or change the preferred display currency",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the display currency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PrefsGet(cmd.Context())
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set CURRENCY",
	Short: "Change the display currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PrefsSet(cmd.Context(), args[0])
	},
}

func parseAmount(raw string) (float64, error) {
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("invalid amount %q: must be a finite number", raw)
	}
	return amount, nil
}

func init() {
	for _, cmd := range []*cobra.Command{ratesCmd, convertCmd, projectCmd} {
		cmd.Flags().BoolVar(&offline, "offline", false, "Use cached rates only")
	}
	ratesCmd.Flags().StringVar(&ratesBase, "base", "", "Base currency (defaults to config)")

	formatCmd.Flags().StringVar(&formatLocale, "locale", "", "Locale such as en-US (defaults to config)")
	formatCmd.Flags().BoolVar(&compact, "compact", false, "Use K/M notation")

	projectCmd.Flags().StringVarP(&projectFile, "file", "f", "", "JSON file with budgets and items")
	projectCmd.Flags().StringVar(&displayCode, "display", "", "Display currency (defaults to the stored preference)")
	_ = projectCmd.MarkFlagRequired("file")

	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)
}
