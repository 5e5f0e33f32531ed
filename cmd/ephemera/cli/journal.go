package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/ephemera/internal/journal"
	"github.com/majorcontext/ephemera/internal/ui"
)

var (
	journalAfter uint64
	journalLimit int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the local attestation journal",
	Long: `Inspect the local attestation journal.

The journal is an optional append-only record of attestations this machine
has emitted, enabled with output.journal in the config file. It holds only
public values.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled attestations",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify the journal's hash chain and every signature",
	Long: `Verify the integrity of the journal.

Checks:
  - Hash chain: records are contiguous and unmodified
  - Signatures: every stored payload verifies under its public key`,
	Args: cobra.NoArgs,
	RunE: runJournalAudit,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalAuditCmd)
	journalListCmd.Flags().Uint64Var(&journalAfter, "after", 0, "only records after this sequence number")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "maximum number of records (0 for all)")
}

type journalRow struct {
	Seq        uint64          `json:"seq"`
	RecordedAt string          `json:"recorded_at"`
	Hash       string          `json:"hash"`
	Attest     json.RawMessage `json:"attestation"`
}

func runJournalList(cmd *cobra.Command, args []string) error {
	store, err := existingJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(journalAfter, journalLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		rows := make([]journalRow, 0, len(recs))
		for _, rec := range recs {
			data, err := json.Marshal(rec.Attestation)
			if err != nil {
				return err
			}
			rows = append(rows, journalRow{
				Seq:        rec.Seq,
				RecordedAt: rec.RecordedAt.Format("2006-01-02T15:04:05.000Z07:00"),
				Hash:       rec.Hash,
				Attest:     data,
			})
		}
		return json.NewEncoder(w).Encode(rows)
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No attestations journaled.")
		return nil
	}
	fmt.Fprintf(w, "%-6s %-24s %-24s %-10s %s\n", "SEQ", "RECORDED", "EVENT", "COUNTER", "PUBLIC KEY")
	for _, rec := range recs {
		att := rec.Attestation
		fmt.Fprintf(w, "%-6d %-24s %-24s %-10d %s\n",
			rec.Seq, rec.RecordedAt.Format("2006-01-02 15:04:05"), att.Event(), att.Counter(), att.PublicKeyHex())
	}
	return nil
}

func runJournalAudit(cmd *cobra.Command, args []string) error {
	store, err := existingJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := journal.AuditorFor(store).Verify()
	if err != nil {
		return fmt.Errorf("verification error: %w", err)
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return err
		}
	} else {
		ui.Section(w, "Journal Integrity")
		if result.HashChainValid {
			ui.Check(w, true, "Hash chain: %d records, no gaps, all hashes valid", result.RecordCount)
		} else {
			ui.Check(w, false, "Hash chain: INVALID")
		}
		if !result.HashChainValid {
			ui.Skip(w, "Signatures: not checked")
		} else if result.SignaturesValid {
			ui.Check(w, true, "Signatures: all valid")
		} else {
			ui.Check(w, false, "Signatures: INVALID")
		}
		if result.UnrecognizedCount > 0 {
			ui.Skip(w, "%d records carry events this build does not recognize", result.UnrecognizedCount)
		}
		if result.Error != "" {
			fmt.Fprintf(w, "\n%s\n", result.Error)
		}
	}

	if !result.Valid {
		return fmt.Errorf("journal failed verification")
	}
	return nil
}
