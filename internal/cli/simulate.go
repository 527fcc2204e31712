package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"signal-bridge/internal/app"
)

var (
	simulateDominance float64
	simulateETHBTC    float64
	simulateASI       float64
	simulateTotal2    float64
	simulateForce     bool
	simulateMessage   string
	simulateDryRun    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a synthetic altseason reading and notify",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		opts := app.SimulateOptions{
			Force:   simulateForce,
			Message: simulateMessage,
			DryRun:  simulateDryRun,
		}
		if flags.Changed("dom") {
			opts.BTCDominance = &simulateDominance
		}
		if flags.Changed("ethbtc") {
			opts.ETHBTC = &simulateETHBTC
		}
		if flags.Changed("asi") {
			opts.AltseasonIndex = &simulateASI
		}
		if flags.Changed("total2") {
			opts.Total2T = &simulateTotal2
		}
		if opts.BTCDominance == nil && opts.ETHBTC == nil && opts.AltseasonIndex == nil && opts.Total2T == nil {
			return errors.New("at least one of --dom, --ethbtc, --asi, --total2 is required")
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateDominance, "dom", 0, "BTC dominance in percent")
	simulateCmd.Flags().Float64Var(&simulateETHBTC, "ethbtc", 0, "ETH/BTC ratio")
	simulateCmd.Flags().Float64Var(&simulateASI, "asi", 0, "Altseason index (0-100)")
	simulateCmd.Flags().Float64Var(&simulateTotal2, "total2", 0, "TOTAL2 market cap in trillions USD")
	simulateCmd.Flags().BoolVar(&simulateForce, "force", false, "Notify even without a transition")
	simulateCmd.Flags().StringVar(&simulateMessage, "message", "", "Note appended to the notification")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "Print the message instead of sending it")
}
