package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/majorcontext/ephemera/internal/log"
	"github.com/majorcontext/ephemera/internal/trigger"
	"github.com/majorcontext/ephemera/internal/ui"
)

var (
	runGPIO       uint8
	runSocket     string
	runInterval   time.Duration
	runLimit      int
	runNoKeyboard bool
	runFormat     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the attestation device",
	Long: `Run the attestation device until interrupted.

Triggers come from the keyboard (every key is a button press), from a Unix
socket accepting {"event":"button_press","gpio":N} lines, and from a fixed
interval. Presses within 50ms of each other are treated as switch bounce,
and attestations are at least one second apart.

Examples:
  ephemera run
  ephemera run --no-keyboard --socket /run/ephemera.sock --format cbor
  ephemera run --interval 2s --limit 10`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if keyboardEnabled() && term.IsTerminal(int(os.Stdin.Fd())) {
			initLog(cmd, true)
		}
		return applyFormat(runFormat)
	},
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Uint8Var(&runGPIO, "gpio", 0, "GPIO pin reported for keyboard and interval presses")
	runCmd.Flags().StringVar(&runSocket, "socket", "", "listen for triggers on this Unix socket")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "press the button on this period")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "stop the interval trigger after this many presses")
	runCmd.Flags().BoolVar(&runNoKeyboard, "no-keyboard", false, "do not read triggers from the terminal")
	runCmd.Flags().StringVar(&runFormat, "format", "", "output format: json, text or cbor")
}

func keyboardEnabled() bool {
	return cfg.Trigger.Keyboard && !runNoKeyboard
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("gpio") {
		cfg.Trigger.GPIO = runGPIO
	}
	if runSocket != "" {
		cfg.Trigger.Socket = runSocket
	}
	if runInterval > 0 {
		cfg.Trigger.Interval = runInterval
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	stdout := cmd.OutOrStdout()
	raw := keyboardEnabled() && term.IsTerminal(int(os.Stdin.Fd()))
	if raw {
		stdout = crlfWriter{w: stdout}
	}
	out, closeSinks, err := openSinks(stdout)
	if err != nil {
		return err
	}
	defer closeSinks()

	var sources []trigger.Source
	if keyboardEnabled() {
		sources = append(sources, &trigger.Keypress{In: os.Stdin, GPIO: cfg.Trigger.GPIO, Clock: sess.clock})
		ui.Infof("Press any key to attest on GPIO %d, q to quit.", cfg.Trigger.GPIO)
	}
	if cfg.Trigger.Socket != "" {
		sources = append(sources, &trigger.Socket{Path: cfg.Trigger.Socket, Clock: sess.clock})
		ui.Infof("Listening for triggers on %s", cfg.Trigger.Socket)
	}
	if cfg.Trigger.Interval > 0 {
		sources = append(sources, &trigger.Interval{
			Period: cfg.Trigger.Interval,
			GPIO:   cfg.Trigger.GPIO,
			Limit:  runLimit,
			Clock:  sess.clock,
		})
	}
	if len(sources) == 0 {
		return fmt.Errorf("no trigger sources: enable the keyboard, a socket or an interval")
	}

	loop := sess.loop(out, true)
	log.Debug("device loop starting", "sources", len(sources), "format", cfg.Output.Format)
	runErr := loop.Run(ctx, sources...)

	stats := loop.Stats()
	log.Info("device loop stopped",
		"triggers", stats.Triggers,
		"created", stats.Created,
		"cooled_down", stats.CooledDown,
		"debounced", stats.Debounced,
		"failed", stats.Failed,
		"output_failed", stats.OutputFailed)
	ui.Infof("%d attestations created, %d cooled down, %d failed.",
		stats.Created, stats.CooledDown, stats.Failed+stats.OutputFailed)
	return runErr
}
