package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/born-ml/born-optim/internal/optim"
	"github.com/born-ml/born-optim/internal/tensor"
)

// Load reads and verifies the checkpoint at path.
func Load(path string) (optim.Snapshot, Header, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return optim.Snapshot{}, Header{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return Decode(raw)
}

// Decode parses a checkpoint produced by Encode.
func Decode(raw []byte) (optim.Snapshot, Header, error) {
	header, data, err := parse(raw)
	if err != nil {
		return optim.Snapshot{}, Header{}, err
	}

	snap := optim.Snapshot{
		Rule:    header.Rule,
		T:       header.Step,
		Tensors: make(map[string]optim.StateTensor, len(header.Tensors)),
	}
	for _, meta := range header.Tensors {
		chunk := data[meta.Offset : meta.Offset+meta.Size]
		values := make([]float32, len(chunk)/4)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*4:]))
		}
		snap.Tensors[meta.Name] = optim.StateTensor{
			Shape: tensor.Shape(append([]int(nil), meta.Shape...)),
			Data:  values,
		}
	}
	return snap, header, nil
}

// parse validates the fixed header, JSON header, tensor index and checksum,
// and returns the header with the data section.
func parse(raw []byte) (Header, []byte, error) {
	if len(raw) < FixedHeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes, fixed header needs %d", ErrTruncated, len(raw), FixedHeaderSize)
	}
	if !bytes.Equal(raw[0:4], []byte(MagicBytes)) {
		return Header{}, nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, raw[0:4])
	}
	if version := binary.LittleEndian.Uint32(raw[4:8]); version != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	headerSize := binary.LittleEndian.Uint64(raw[16:24])
	dataSize := binary.LittleEndian.Uint64(raw[24:32])
	if headerSize > MaxHeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerEnd := FixedHeaderSize + int64(headerSize)
	if headerEnd > int64(len(raw)) {
		return Header{}, nil, fmt.Errorf("%w: header ends at %d, file is %d bytes", ErrTruncated, headerEnd, len(raw))
	}

	var header Header
	if err := json.Unmarshal(raw[FixedHeaderSize:headerEnd], &header); err != nil {
		return Header{}, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if header.FormatVersion != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: header declares %d", ErrUnsupportedVersion, header.FormatVersion)
	}

	dataOffset := alignUp(headerEnd)
	available := int64(len(raw)) - dataOffset
	if available < 0 || dataSize > uint64(available) {
		return Header{}, nil, fmt.Errorf("%w: data section needs %d bytes", ErrTruncated, dataSize)
	}
	data := raw[dataOffset : dataOffset+int64(dataSize)]

	var want [ChecksumSize]byte
	copy(want[:], raw[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if sha256.Sum256(data) != want {
		return Header{}, nil, ErrChecksumMismatch
	}

	if err := validateTensors(header.Tensors, int64(dataSize)); err != nil {
		return Header{}, nil, err
	}
	if header.Step < 0 {
		return Header{}, nil, fmt.Errorf("%w: negative step %d", ErrInvalidTensor, header.Step)
	}
	return header, data, nil
}
