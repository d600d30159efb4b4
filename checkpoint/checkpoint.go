// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint saves and restores optimizer state files.
package checkpoint

import (
	"github.com/born-ml/born-optim/internal/checkpoint"
	"github.com/born-ml/born-optim/optim"
)

// Header is the JSON header of a checkpoint file.
type Header = checkpoint.Header

// TensorMeta describes one state tensor in a checkpoint.
type TensorMeta = checkpoint.TensorMeta

// SaveOptions carries optional header fields for Save.
type SaveOptions = checkpoint.SaveOptions

// Errors returned when reading a checkpoint.
var (
	ErrInvalidMagic       = checkpoint.ErrInvalidMagic
	ErrUnsupportedVersion = checkpoint.ErrUnsupportedVersion
	ErrChecksumMismatch   = checkpoint.ErrChecksumMismatch
	ErrHeaderTooLarge     = checkpoint.ErrHeaderTooLarge
	ErrOutOfBounds        = checkpoint.ErrOutOfBounds
	ErrTruncated          = checkpoint.ErrTruncated
)

// Save writes snap to path.
func Save(path string, snap optim.Snapshot, opts SaveOptions) error {
	return checkpoint.Save(path, snap, opts)
}

// Load reads and verifies the checkpoint at path.
func Load(path string) (optim.Snapshot, Header, error) {
	return checkpoint.Load(path)
}
