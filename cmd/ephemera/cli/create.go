package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/ephemera/internal/payload"
	"github.com/majorcontext/ephemera/internal/trigger"
)

var (
	createGPIO   uint8
	createFormat string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a single attestation",
	Long: `Create one attestation for a button press and write it to stdout.

The attestation goes through the same cooldown gate and sinks as 'ephemera
run', including the journal when enabled.

Examples:
  ephemera create
  ephemera create --gpio 4 --format text`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return applyFormat(createFormat)
	},
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().Uint8Var(&createGPIO, "gpio", 0, "GPIO pin of the pressed button")
	createCmd.Flags().StringVar(&createFormat, "format", "", "output format: json, text or cbor")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	gpio := cfg.Trigger.GPIO
	if cmd.Flags().Changed("gpio") {
		gpio = createGPIO
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	out, closeSinks, err := openSinks(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeSinks()

	t := trigger.Trigger{Event: payload.ButtonPress{GPIO: gpio}, At: sess.clock.NowMS()}
	_, err = sess.loop(out, false).Handle(ctx, t)
	return err
}
