package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/config"
	"github.com/majorcontext/ephemera/internal/payload"
	"github.com/majorcontext/ephemera/internal/sink"
	"github.com/majorcontext/ephemera/internal/ui"
)

var verifyFormat string

var verifyCmd = &cobra.Command{
	Use:   "verify [file|-]",
	Short: "Verify attestations",
	Long: `Verify attestations produced by 'ephemera run' or 'ephemera create'.

Reads JSON lines (default) or a CBOR stream from the file, or from stdin
when the file is omitted or "-". Each attestation is checked against the
public key it carries. Attestations with an event this build does not
know are reported but not counted as failures.

Examples:
  ephemera create | ephemera verify
  ephemera verify --format cbor attestations.cbor`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyFormat, "format", config.FormatJSON, "input format: json or cbor")
}

// verifyResult is one line of verify output.
type verifyResult struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Event   string `json:"event,omitempty"`
	Counter uint32 `json:"counter"`
	PK      string `json:"pk,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	statusValid        = "valid"
	statusInvalid      = "invalid"
	statusUnrecognized = "unrecognized"
	statusMalformed    = "malformed"
)

func runVerify(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var results []verifyResult
	var err error
	switch verifyFormat {
	case config.FormatJSON:
		results, err = verifyJSON(in)
	case config.FormatCBOR:
		results, err = verifyCBOR(in)
	default:
		return fmt.Errorf("unsupported input format %q", verifyFormat)
	}
	if err != nil {
		return err
	}
	return reportVerify(cmd.OutOrStdout(), results)
}

func verifyJSON(r io.Reader) ([]verifyResult, error) {
	var results []verifyResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	index := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		index++
		var att attest.Attestation
		err := json.Unmarshal([]byte(line), &att)
		results = append(results, check(index, &att, err))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return results, nil
}

func verifyCBOR(r io.Reader) ([]verifyResult, error) {
	var results []verifyResult
	cr := sink.NewCBORReader(r)
	for index := 1; ; index++ {
		att, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if att == nil && !errors.Is(err, payload.ErrUnrecognizedEvent) {
			// A broken CBOR stream cannot be resynchronized.
			results = append(results, verifyResult{Index: index, Status: statusMalformed, Error: err.Error()})
			return results, nil
		}
		results = append(results, check(index, att, err))
	}
}

func check(index int, att *attest.Attestation, decodeErr error) verifyResult {
	res := verifyResult{Index: index}
	switch {
	case errors.Is(decodeErr, payload.ErrUnrecognizedEvent):
		res.Status = statusUnrecognized
		res.Error = decodeErr.Error()
		return res
	case decodeErr != nil:
		res.Status = statusMalformed
		res.Error = decodeErr.Error()
		return res
	}

	res.Event = att.Event().String()
	res.Counter = att.Counter()
	res.PK = att.PublicKeyHex()
	if _, ok := att.Event().(payload.Unrecognized); ok {
		res.Status = statusUnrecognized
		res.Error = "unrecognized event " + res.Event
		return res
	}
	if err := attest.Verify(att); err != nil {
		res.Status = statusInvalid
		res.Error = err.Error()
		return res
	}
	res.Status = statusValid
	return res
}

func reportVerify(w io.Writer, results []verifyResult) error {
	failed := 0
	for _, r := range results {
		if r.Status == statusInvalid || r.Status == statusMalformed {
			failed++
		}
	}

	if jsonOut {
		if err := json.NewEncoder(w).Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch r.Status {
			case statusValid:
				ui.Check(w, true, "#%d %s counter=%d pk=%s", r.Index, r.Event, r.Counter, r.PK)
			case statusUnrecognized:
				ui.Skip(w, "#%d %s", r.Index, r.Error)
			default:
				ui.Check(w, false, "#%d %s: %s", r.Index, r.Status, r.Error)
			}
		}
	}

	if len(results) == 0 {
		return fmt.Errorf("no attestations in input")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d attestations failed verification", failed, len(results))
	}
	return nil
}
