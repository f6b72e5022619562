package bind_group_provider

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
)

// BufferWriter uploads bytes into a buffer. The renderer implements it.
type BufferWriter interface {
	WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error
}

// BufferWrite describes a single GPU buffer write at a given byte offset.
type BufferWrite struct {
	Buffer gpu.Buffer
	Offset uint64
	Data   []byte
}

// WriteAll performs writes in order and stops at the first failure.
//
// Parameters:
//   - w: the writer
//   - writes: the writes to perform
//
// Returns:
//   - error: an error naming the buffer that failed
func WriteAll(w BufferWriter, writes ...BufferWrite) error {
	for _, bw := range writes {
		if err := w.WriteBuffer(bw.Buffer, bw.Offset, bw.Data); err != nil {
			return fmt.Errorf("write %s: %w", bw.Buffer.Descriptor().Label, err)
		}
	}
	return nil
}
