package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/report"
)

var (
	exportOut  string
	exportOpts report.Options
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the published snapshot as an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openOutputStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := st.LoadSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "export: load snapshot")
		}

		if err := report.Save(exportOut, snap, exportOpts); err != nil {
			return err
		}

		zap.L().Info("snapshot exported",
			zap.String("path", exportOut),
			zap.String("run_id", snap.RunID),
			zap.Int("suspects", len(snap.Rankings)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "caselink-report.xlsx", "output xlsx path")
	exportCmd.Flags().IntVar(&exportOpts.MaxSuspects, "max-suspects", 0, "limit the Suspects sheet (0 = all)")
	exportCmd.Flags().IntVar(&exportOpts.MaxHandoffs, "max-handoffs", 0, "limit the Handoffs sheet (0 = all)")
	exportCmd.Flags().IntVar(&exportOpts.MinDevices, "min-devices", 0, "drop cells with fewer devices")
	rootCmd.AddCommand(exportCmd)
}
