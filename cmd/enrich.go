package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <tenant> <contact> <field>...",
	Short: "Enrich fields of one contact and print the job",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		job, runErr := env.Orchestrator.Enrich(ctx, args[0], args[1], args[2:])

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if job != nil {
			if err := enc.Encode(job); err != nil {
				return eris.Wrap(err, "encode job")
			}
		}
		if runErr != nil {
			return runErr
		}

		zap.L().Info("enrichment complete",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Float64("total_cost", job.TotalCost),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
