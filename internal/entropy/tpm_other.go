//go:build !linux

package entropy

import "errors"

// OpenTPM is only supported on Linux.
func OpenTPM(string) (*TPM, error) {
	return nil, errors.New("tpm entropy source requires linux")
}
