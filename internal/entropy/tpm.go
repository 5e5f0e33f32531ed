package entropy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/majorcontext/ephemera/internal/secret"
)

// DefaultTPMPath is the kernel TPM resource manager device.
const DefaultTPMPath = "/dev/tpmrm0"

// maxTPMRequest is the largest GetRandom request every TPM 2.0 honours: the
// size of its largest digest, which is at least SHA-256.
const maxTPMRequest = 32

// TPM draws random bytes from the RNG inside a TPM 2.0.
type TPM struct {
	mu  sync.Mutex
	tpm transport.TPM
}

// NewTPM wraps an already opened TPM transport. The caller keeps ownership
// of the transport unless it implements transport.TPMCloser, in which case
// Close closes it.
func NewTPM(t transport.TPM) *TPM {
	return &TPM{tpm: t}
}

// Fill implements Source. Requests are split into chunks the TPM accepts.
func (s *TPM) Fill(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(p) > 0 {
		n := min(len(p), maxTPMRequest)
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(n)}.Execute(s.tpm) //nolint:gosec // n <= maxTPMRequest
		if err != nil {
			return fmt.Errorf("tpm2 GetRandom: %w", err)
		}
		got := copy(p, rsp.RandomBytes.Buffer)
		secret.Wipe(rsp.RandomBytes.Buffer)
		if got == 0 {
			return errors.New("tpm2 GetRandom returned no bytes")
		}
		p = p[got:]
	}
	return nil
}

// Close closes the underlying transport when it is closable.
func (s *TPM) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.tpm.(transport.TPMCloser); ok {
		return c.Close()
	}
	return nil
}

func (*TPM) String() string { return "tpm" }
