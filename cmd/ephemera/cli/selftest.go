package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/majorcontext/ephemera/internal/device"
	"github.com/majorcontext/ephemera/internal/ui"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Check the entropy source and the key lifecycle",
	Long: `Open the configured entropy source, run its start-up check, and take
two throwaway keys through generate, sign, verify and destroy.

Nothing produced by the self-test is emitted or journaled.`,
	Args: cobra.NoArgs,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

func runSelftest(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	report, testErr := device.SelfTest(sess.source)

	w := cmd.OutOrStdout()
	if jsonOut {
		if err := json.NewEncoder(w).Encode(report); err != nil {
			return err
		}
		return testErr
	}

	ui.Section(w, "Self-test: "+report.Source)
	ui.Check(w, report.Entropy, "Entropy sample is not degenerate")
	ui.Check(w, report.SignOnce, "Ephemeral key signs exactly once")
	ui.Check(w, report.Verify, "Signature verifies")
	ui.Check(w, report.Zeroized, "Seed, private scalar and nonce prefix wiped after use")
	ui.Check(w, report.Unique, "Consecutive keys differ")
	return testErr
}
