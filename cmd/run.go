package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one monitoring run and print the resulting record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, _, err := initPipeline()
		if err != nil {
			return err
		}

		record, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("urgency", string(record.Urgency)),
			zap.Int("incidents", len(record.Candidates)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
