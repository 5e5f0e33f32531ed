package journal

import (
	"bytes"
	"fmt"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/payload"
)

// Result contains the results of verifying a journal.
type Result struct {
	Valid             bool   `json:"valid"`
	HashChainValid    bool   `json:"hash_chain_valid"`
	SignaturesValid   bool   `json:"signatures_valid"`
	RecordCount       uint64 `json:"record_count"`
	UnrecognizedCount int    `json:"unrecognized_count"`
	Error             string `json:"error,omitempty"`
}

// Auditor verifies the integrity of a journal.
type Auditor struct {
	store *Store
	owned bool
}

// NewAuditor opens the journal at path for auditing.
func NewAuditor(path string) (*Auditor, error) {
	store, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Auditor{store: store, owned: true}, nil
}

// AuditorFor audits an already open store. Close leaves the store open.
func AuditorFor(store *Store) *Auditor {
	return &Auditor{store: store}
}

// Close closes the auditor's store if the auditor opened it.
func (a *Auditor) Close() error {
	if !a.owned {
		return nil
	}
	return a.store.Close()
}

// Verify walks every record, checking the hash chain and each signature
// over the stored payload bytes. It stops at the first failure.
func (a *Auditor) Verify() (*Result, error) {
	result := &Result{
		Valid:           true,
		HashChainValid:  true,
		SignaturesValid: true,
	}

	recs, err := a.store.List(0, 0)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	result.RecordCount = uint64(len(recs))

	fail := func(chain bool, format string, args ...any) (*Result, error) {
		result.Valid = false
		if chain {
			result.HashChainValid = false
		} else {
			result.SignaturesValid = false
		}
		result.Error = fmt.Sprintf(format, args...)
		return result, nil
	}

	var prevHash string
	for i, rec := range recs {
		if rec.Seq != uint64(i)+1 {
			return fail(true, "sequence gap: expected %d, got %d", i+1, rec.Seq)
		}
		if rec.PrevHash != prevHash {
			return fail(true, "broken chain at seq %d", rec.Seq)
		}
		if !rec.VerifyHash() {
			return fail(true, "hash mismatch at seq %d", rec.Seq)
		}
		prevHash = rec.Hash

		att := rec.Attestation
		pk, sig := att.PublicKey(), att.Signature()
		if !attest.VerifySignature(pk[:], rec.Encoded, sig[:]) {
			return fail(false, "invalid signature at seq %d", rec.Seq)
		}
		if _, ok := att.Event().(payload.Unrecognized); ok {
			result.UnrecognizedCount++
			continue
		}
		canonical, err := att.EncodedPayload()
		if err != nil || !bytes.Equal(canonical, rec.Encoded) {
			return fail(false, "non-canonical payload at seq %d", rec.Seq)
		}
	}
	return result, nil
}
