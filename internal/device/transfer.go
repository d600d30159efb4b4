package device

import (
	"fmt"

	"github.com/born-ml/born-optim/internal/tensor"
)

// Transfer returns the contents of src as a buffer resident at dst.
//
// When src already lives at dst it is returned as is. Otherwise the data is
// read back under the source device's scope and uploaded under the
// destination device's scope, so accelerator-to-accelerator copies always
// land on dst, never on the source device.
func (c *Context) Transfer(src tensor.Buffer, dst tensor.Location) (tensor.Buffer, error) {
	if src.Location() == dst {
		return src, nil
	}

	target, err := c.Lookup(dst)
	if err != nil {
		return nil, err
	}

	var staged []float32
	err = c.Use(src.Location(), func() error {
		var readErr error
		staged, readErr = src.Host()
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Location(), err)
	}

	var out tensor.Buffer
	err = c.Use(dst, func() error {
		var upErr error
		out, upErr = target.Upload(staged, src.Shape())
		return upErr
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", dst, err)
	}
	return out, nil
}
