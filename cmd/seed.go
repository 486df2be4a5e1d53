package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/scenario"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo scenario into the input tables",
	Long:  "Expands the burglary crew scenario (or a scenario file given with --file) into location events, cases and social edges and upserts them into the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := loadScenario(seedFile)
		if err != nil {
			return err
		}
		if f.BucketMinutes != cfg.Analytics.TimeBucketMinutes {
			zap.L().Warn("scenario bucket width differs from analytics config",
				zap.Int("scenario_minutes", f.BucketMinutes),
				zap.Int("config_minutes", cfg.Analytics.TimeBucketMinutes),
			)
		}

		in, err := f.Inputs()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveInputs(ctx, in); err != nil {
			return eris.Wrap(err, "seed inputs")
		}

		zap.L().Info("scenario seeded",
			zap.String("scenario", f.Name),
			zap.Int("events", len(in.Events)),
			zap.Int("cases", len(in.Cases)),
			zap.Int("social_edges", len(in.SocialEdges)),
		)
		return nil
	},
}

// loadScenario returns the scenario at path, or the embedded burglary crew
// when path is empty.
func loadScenario(path string) (*scenario.Fixture, error) {
	if path == "" {
		return scenario.BurglaryCrew()
	}
	return scenario.LoadFile(path)
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "scenario YAML file (default: embedded burglary crew)")
	rootCmd.AddCommand(seedCmd)
}
