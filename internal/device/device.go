// Package device tracks the compute devices a process has opened and the
// device that is current for buffer operations.
//
// Work on an accelerator-resident buffer must run inside Context.Use for the
// buffer's location: the device is activated, made current, and released
// again on every exit path.
package device

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/born-ml/born-optim/internal/backend/cpu"
	"github.com/born-ml/born-optim/internal/tensor"
)

// Common errors.
var (
	ErrUnknownDevice   = errors.New("device not registered")
	ErrDuplicateDevice = errors.New("device already registered")
)

// Device is an opened compute device that owns buffers at one location.
type Device interface {
	// Location returns the memory space this device allocates in.
	Location() tensor.Location

	// Activate acquires the device for the calling operation. The returned
	// release function must be called exactly once.
	Activate() (release func(), err error)

	// Alloc allocates a zero-filled buffer on the device.
	Alloc(shape tensor.Shape) (tensor.Buffer, error)

	// Upload copies host data into a new buffer on the device.
	Upload(data []float32, shape tensor.Shape) (tensor.Buffer, error)
}

// Context is a registry of devices plus the current-device stack.
type Context struct {
	mu      sync.Mutex
	devices map[tensor.Location]Device
	current tensor.Location
	active  map[tensor.Location]int // open Use scopes per location
}

// NewContext returns a context with the host device registered and current.
func NewContext() *Context {
	c := &Context{
		devices: make(map[tensor.Location]Device),
		current: tensor.Host,
		active:  make(map[tensor.Location]int),
	}
	c.devices[tensor.Host] = cpu.NewBackend()
	return c
}

// Register adds dev to the context.
func (c *Context) Register(dev Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc := dev.Location()
	if _, exists := c.devices[loc]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, loc)
	}
	c.devices[loc] = dev
	return nil
}

// Lookup returns the device registered at loc.
func (c *Context) Lookup(loc tensor.Location) (Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dev, ok := c.devices[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, loc)
	}
	return dev, nil
}

// Current returns the location of the device made current by the innermost Use.
func (c *Context) Current() tensor.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Locations lists registered locations, host first, then by device and ordinal.
func (c *Context) Locations() []tensor.Location {
	c.mu.Lock()
	defer c.mu.Unlock()

	locs := make([]tensor.Location, 0, len(c.devices))
	for loc := range c.devices {
		locs = append(locs, loc)
	}
	slices.SortFunc(locs, func(a, b tensor.Location) int {
		if a.Device != b.Device {
			return int(a.Device) - int(b.Device)
		}
		return a.Index - b.Index
	})
	return locs
}

// Use runs fn with the device at loc activated and current.
// The previous current device is restored and the device released even if
// fn returns an error or panics. When an enclosing scope already holds loc,
// including a scope further out such as A inside B inside A, fn runs with loc
// current but the device is not activated a second time. Accelerators
// serialize on activation, so activating one twice from the same thread
// would never return.
//
// A Context tracks one thread of control; goroutines that need their own
// device scopes should use their own Context.
func (c *Context) Use(loc tensor.Location, fn func() error) error {
	dev, err := c.Lookup(loc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	held := c.current == loc || c.active[loc] > 0
	c.mu.Unlock()

	if !held {
		release, err := dev.Activate()
		if err != nil {
			return fmt.Errorf("activate %s: %w", loc, err)
		}
		defer release()
	}

	c.mu.Lock()
	prev := c.current
	c.current = loc
	c.active[loc]++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.current = prev
		if c.active[loc]--; c.active[loc] == 0 {
			delete(c.active, loc)
		}
		c.mu.Unlock()
	}()
	return fn()
}
