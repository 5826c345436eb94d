package option

import (
	"errors"
	"fmt"
)

// Value types referenced by the catalogue. Implementations are provided by
// the transport layer.
type (
	// BufferAllocator allocates buffers for a connection.
	BufferAllocator interface {
		Allocate(capacity int) []byte
	}

	// RecvBufferAllocator predicts the size of the next receive buffer,
	// based on the amount of data previously read.
	RecvBufferAllocator interface {
		NextReceiveBufferSize() int
		Record(actualBytes int)
	}

	// SizeEstimator estimates the size of a pending outbound message, in
	// bytes, for the purposes of watermark accounting.
	SizeEstimator interface {
		Size(msg any) int
	}

	// WaterMark is the pair of outbound buffer thresholds used to pause and
	// resume writes. Writes are paused once the pending bytes exceed High,
	// and resumed once they drop below Low.
	WaterMark struct {
		Low  int `yaml:"low"`
		High int `yaml:"high"`
	}
)

// DefaultWaterMark is 32KiB low, 64KiB high.
var DefaultWaterMark = WaterMark{Low: 32 * 1024, High: 64 * 1024}

var errWaterMark = errors.New("invalid water mark")

// NewWaterMark validates and returns a WaterMark.
func NewWaterMark(low, high int) (WaterMark, error) {
	w := WaterMark{Low: low, High: high}
	if err := w.Validate(); err != nil {
		return WaterMark{}, err
	}
	return w, nil
}

// Validate requires 0 <= Low <= High.
func (w WaterMark) Validate() error {
	if w.Low < 0 {
		return fmt.Errorf("%w: low %d must be >= 0", errWaterMark, w.Low)
	}
	if w.High < w.Low {
		return fmt.Errorf("%w: high %d must be >= low %d", errWaterMark, w.High, w.Low)
	}
	return nil
}

func (w WaterMark) String() string {
	return fmt.Sprintf("WaterMark(low: %d, high: %d)", w.Low, w.High)
}
