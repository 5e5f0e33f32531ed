package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/majorcontext/ephemera/internal/attest"
)

// JSON writes one JSON object per line.
type JSON struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSON returns a JSON line sink writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{w: w}
}

// Emit implements Sink.
func (s *JSON) Emit(ctx context.Context, att *attest.Attestation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("marshaling attestation: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("writing attestation: %w", err)
	}
	return nil
}
