package checkpoint

import "time"

// Format constants.
const (
	MagicBytes      = "BOPT"
	FormatVersion   = 1
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	DataAlignment   = 64   // Data section starts on a 64-byte boundary
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
	DTypeFloat32    = "float32"
)

// Validation limits.
const (
	MaxHeaderSize  = 16 * 1024 * 1024
	MaxTensorCount = 1_000_000
)

// Flags stored in the fixed header.
const (
	FlagHasState    uint32 = 1 << 0 // At least one state tensor is present
	FlagHasMetadata uint32 = 1 << 1 // Custom metadata is present
)

// Header is the JSON header of a checkpoint file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Generator     string            `json:"generator"`
	RunID         string            `json:"run_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Rule          string            `json:"rule"`
	Step          int               `json:"step"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TensorMeta describes one state tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // State key, e.g. "state.0.velocity"
	DType  string `json:"dtype"`  // Always "float32"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Byte offset from the start of the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// alignUp rounds n up to the next multiple of DataAlignment.
func alignUp(n int64) int64 {
	return (n + DataAlignment - 1) / DataAlignment * DataAlignment
}
