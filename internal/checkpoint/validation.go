package checkpoint

import (
	"fmt"
	"sort"

	"github.com/born-ml/born-optim/internal/tensor"
)

// validateTensors checks that every entry is a float32 tensor whose byte
// range matches its shape, lies inside the data section and does not
// overlap another entry.
func validateTensors(metas []TensorMeta, dataSize int64) error {
	if len(metas) > MaxTensorCount {
		return fmt.Errorf("%w: %d tensors exceeds limit %d", ErrInvalidTensor, len(metas), MaxTensorCount)
	}

	seen := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if _, dup := seen[m.Name]; dup {
			return &ValidationError{Kind: ErrInvalidTensor, Tensor: m.Name, Details: "duplicate name"}
		}
		seen[m.Name] = struct{}{}

		if m.DType != DTypeFloat32 {
			return &ValidationError{Kind: ErrInvalidTensor, Tensor: m.Name, Details: fmt.Sprintf("unsupported dtype %q", m.DType)}
		}
		if err := tensor.Shape(m.Shape).Validate(); err != nil {
			return &ValidationError{Kind: ErrInvalidTensor, Tensor: m.Name, Details: err.Error()}
		}
		count, ok := tensor.Shape(m.Shape).NumElementsWithin(int(dataSize / 4))
		if !ok {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  m.Name,
				Details: fmt.Sprintf("shape %v exceeds data size %d", m.Shape, dataSize),
			}
		}
		if want := int64(count) * 4; m.Size != want {
			return &ValidationError{
				Kind:    ErrInvalidTensor,
				Tensor:  m.Name,
				Details: fmt.Sprintf("size %d bytes, shape %v needs %d", m.Size, m.Shape, want),
			}
		}
		if m.Offset < 0 || m.Offset%4 != 0 {
			return &ValidationError{Kind: ErrOutOfBounds, Tensor: m.Name, Details: fmt.Sprintf("bad offset %d", m.Offset)}
		}
		if m.Offset > dataSize || m.Size > dataSize-m.Offset {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  m.Name,
				Details: fmt.Sprintf("range [%d, %d) exceeds data size %d", m.Offset, m.Offset+m.Size, dataSize),
			}
		}
	}

	// Overlap check on entries sorted by offset.
	sorted := append([]TensorMeta(nil), metas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Offset+prev.Size > cur.Offset {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  cur.Name,
				Details: fmt.Sprintf("overlaps %q", prev.Name),
			}
		}
	}
	return nil
}
