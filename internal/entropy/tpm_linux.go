//go:build linux

package entropy

import (
	"fmt"
	"log/slog"

	"github.com/google/go-tpm/tpm2/transport/linuxtpm"
)

// OpenTPM opens a TPM character device.
//
// Use /dev/tpmrm0: /dev/tpm0 bypasses the kernel resource manager.
func OpenTPM(path string) (*TPM, error) {
	switch path {
	case "":
		path = DefaultTPMPath
	case "/dev/tpm0":
		slog.Warn("direct use of the TPM can lead to resource exhaustion, use a TPM resource manager instead")
	}
	t, err := linuxtpm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return NewTPM(t), nil
}
