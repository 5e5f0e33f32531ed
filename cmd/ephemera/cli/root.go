// Package cli implements the ephemera command-line interface using Cobra.
// It provides commands for running the attestation device, creating and
// verifying attestations, and inspecting the local journal.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/ephemera/internal/config"
	"github.com/majorcontext/ephemera/internal/log"
)

var (
	verbose    bool
	jsonOut    bool
	configPath string

	// cfg is loaded before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ephemera",
	Short: "Ephemera - unlinkable proofs of physical events",
	Long: `Ephemera turns a physical event, such as a button press, into an
attestation: a small signed statement that the event happened.

Every attestation is signed by a fresh Ed25519 key that is destroyed right
after signing, so no two attestations can be linked to each other or to the
device that made them. A one second cooldown limits how fast a device can
produce them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		initLog(cmd, false)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// initLog (re)initializes logging. interactive keeps info and debug off
// stderr while the terminal is in raw mode.
func initLog(cmd *cobra.Command, interactive bool) {
	if err := log.Init(log.Options{
		Verbose:       verbose,
		JSONFormat:    jsonOut,
		Interactive:   interactive,
		DebugDir:      config.DebugDir(),
		RetentionDays: cfg.Debug.RetentionDays,
		Stderr:        cmd.ErrOrStderr(),
	}); err != nil {
		// Non-fatal: the default logger stays in place.
		cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ephemera/config.yaml)")
}
