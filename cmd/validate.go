package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/caselink/internal/scenario"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the scenario acceptance checks against the published snapshot",
	Long:  "Reads the seeded inputs and the last published snapshot and checks the outcomes the scenario expects: incident crowd size, suspect presence, linked cases, the burner switch, the top handoff and the top suspects.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := loadScenario(validateFile)
		if err != nil {
			return err
		}

		st, err := openOutputStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		in, err := st.LoadInputs(ctx)
		if err != nil {
			return eris.Wrap(err, "validate: load inputs")
		}
		snap, err := st.LoadSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "validate: load snapshot")
		}

		checks := f.Verify(in, snap)
		formatChecks(os.Stdout, checks)
		if !scenario.AllPassed(checks) {
			return eris.Errorf("validate: %d of %d checks failed", countFailed(checks), len(checks))
		}
		return nil
	},
}

func formatChecks(out io.Writer, checks []scenario.Check) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", status, c.Name, c.Detail)
	}
	_, _ = fmt.Fprintf(w, "\n%d/%d checks passed\n", len(checks)-countFailed(checks), len(checks))
	_ = w.Flush()
}

func countFailed(checks []scenario.Check) int {
	n := 0
	for _, c := range checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "scenario YAML file (default: embedded burglary crew)")
	rootCmd.AddCommand(validateCmd)
}
