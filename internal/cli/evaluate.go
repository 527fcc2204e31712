package cli

import (
	"github.com/spf13/cobra"
)

var evaluateFile string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one alert JSON through the verdict engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().EvaluateFile(cmd.Context(), evaluateFile, cmd.InOrStdin())
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateFile, "file", "-", "Alert JSON file, - for stdin")
}
