package main

import (
	"github.com/spf13/cobra"
)

var (
	monitorLookback int
	monitorNoSend   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Job outcome and spend alerting",
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one alert check and print the snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mc := cfg.Monitor
		if monitorLookback > 0 {
			mc.LookbackWindowHours = monitorLookback
		}
		if mc.LookbackWindowHours <= 0 {
			mc.LookbackWindowHours = 24
		}
		if monitorNoSend {
			mc.WebhookURL = ""
		}

		res, err := newChecker(st, mc).Check(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	monitorCheckCmd.Flags().IntVar(&monitorLookback, "lookback", 0, "lookback window in hours (default from config)")
	monitorCheckCmd.Flags().BoolVar(&monitorNoSend, "dry-run", false, "evaluate alerts without calling the webhook")
	monitorCmd.AddCommand(monitorCheckCmd)
	rootCmd.AddCommand(monitorCmd)
}
