package sink

import (
	"context"

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/log"
)

// Log records each attestation as an info level log record.
type Log struct{}

// Emit implements Sink.
func (Log) Emit(_ context.Context, att *attest.Attestation) error {
	log.Info("attestation created",
		"event", att.Event().String(),
		"ts", att.TimestampMS(),
		"counter", att.Counter(),
		"pk", att.PublicKeyHex(),
		"sig", att.SignatureHex())
	return nil
}
