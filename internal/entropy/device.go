package entropy

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultDevicePath is the Linux hardware RNG character device.
const DefaultDevicePath = "/dev/hwrng"

// Device reads raw output from a hardware RNG character device.
type Device struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenDevice opens the hardware RNG at path.
func OpenDevice(path string) (*Device, error) {
	if path == "" {
		path = DefaultDevicePath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Device{path: path, f: f}, nil
}

// Fill implements Source.
func (d *Device) Fill(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return fmt.Errorf("%s: device closed", d.path)
	}
	if _, err := io.ReadFull(d.f, p); err != nil {
		return fmt.Errorf("reading %s: %w", d.path, err)
	}
	return nil
}

// Close closes the device file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) String() string { return "hwrng:" + d.path }
