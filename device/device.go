// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device exposes the device registry and scoped activation used by
// the optimizer.
package device

import "github.com/born-ml/born-optim/internal/device"

// Device is an opened compute device that owns buffers at one location.
type Device = device.Device

// Context is a registry of devices plus the current device.
type Context = device.Context

// Errors returned by Context.
var (
	ErrUnknownDevice   = device.ErrUnknownDevice
	ErrDuplicateDevice = device.ErrDuplicateDevice
)

// NewContext returns a context with the host device registered and current.
func NewContext() *Context {
	return device.NewContext()
}
