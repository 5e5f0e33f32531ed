package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/majorcontext/ephemera/internal/attest"
)

// Text writes a human readable block per attestation, in the layout of the
// device's serial console.
type Text struct {
	mu sync.Mutex
	w  io.Writer
}

// NewText returns a text sink writing to w.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

// Emit implements Sink.
func (s *Text) Emit(ctx context.Context, att *attest.Attestation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sshKey, err := att.AuthorizedKey()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("=== ATTESTATION ===\n")
	fmt.Fprintf(&b, "Event:      %s\n", att.Event())
	fmt.Fprintf(&b, "Timestamp:  %d\n", att.TimestampMS())
	fmt.Fprintf(&b, "Counter:    %d\n", att.Counter())
	fmt.Fprintf(&b, "Public Key: %s\n", att.PublicKeyHex())
	fmt.Fprintf(&b, "Signature:  %s\n", att.SignatureHex())
	fmt.Fprintf(&b, "SSH Key:    %s\n", sshKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("writing attestation: %w", err)
	}
	return nil
}
