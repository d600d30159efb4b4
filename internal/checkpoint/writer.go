package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/born-optim/internal/optim"
)

// Generator is recorded in every header written by this package.
const Generator = "born-optim"

// SaveOptions carries optional header fields for Save.
type SaveOptions struct {
	RunID    uuid.UUID         // Zero value generates a new random id
	Metadata map[string]string // Free-form key/value pairs
}

// Save writes snap to path.
//
// The file is written to a temporary sibling and renamed into place, so an
// interrupted Save never leaves a partial checkpoint at path.
func Save(path string, snap optim.Snapshot, opts SaveOptions) error {
	data, err := Encode(snap, opts)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Removal fails after a successful rename.

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}

// Encode serializes snap into the checkpoint file format.
func Encode(snap optim.Snapshot, opts SaveOptions) ([]byte, error) {
	if snap.T < 0 {
		return nil, fmt.Errorf("%w: negative step %d", ErrInvalidTensor, snap.T)
	}
	if len(snap.Tensors) > MaxTensorCount {
		return nil, fmt.Errorf("%w: %d tensors exceeds limit %d", ErrInvalidTensor, len(snap.Tensors), MaxTensorCount)
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	names := make([]string, 0, len(snap.Tensors))
	for name := range snap.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	// Build the data section and the tensor index together.
	var body bytes.Buffer
	metas := make([]TensorMeta, 0, len(names))
	for _, name := range names {
		st := snap.Tensors[name]
		if err := st.Shape.Validate(); err != nil {
			return nil, &ValidationError{Kind: ErrInvalidTensor, Tensor: name, Details: err.Error()}
		}
		if len(st.Data) != st.Shape.NumElements() {
			return nil, &ValidationError{
				Kind:    ErrInvalidTensor,
				Tensor:  name,
				Details: fmt.Sprintf("%d values for shape %v", len(st.Data), st.Shape),
			}
		}

		offset := int64(body.Len())
		var word [4]byte
		for _, v := range st.Data {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			body.Write(word[:])
		}

		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  DTypeFloat32,
			Shape:  append([]int(nil), st.Shape...),
			Offset: offset,
			Size:   int64(body.Len()) - offset,
		})
	}

	flags := uint32(0)
	if len(metas) > 0 {
		flags |= FlagHasState
	}
	if len(opts.Metadata) > 0 {
		flags |= FlagHasMetadata
	}

	header := Header{
		FormatVersion: FormatVersion,
		Generator:     Generator,
		RunID:         runID.String(),
		CreatedAt:     time.Now().UTC(),
		Rule:          snap.Rule,
		Step:          snap.T,
		Tensors:       metas,
		Metadata:      opts.Metadata,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(headerJSON))
	}

	dataOffset := alignUp(int64(FixedHeaderSize + len(headerJSON)))
	out := make([]byte, dataOffset+int64(body.Len()))

	copy(out[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(out[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(out[8:12], flags)
	binary.LittleEndian.PutUint64(out[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(out[24:32], uint64(body.Len()))
	sum := sha256.Sum256(body.Bytes())
	copy(out[ChecksumOffset:ChecksumOffset+ChecksumSize], sum[:])

	copy(out[FixedHeaderSize:], headerJSON)
	copy(out[dataOffset:], body.Bytes())
	return out, nil
}
