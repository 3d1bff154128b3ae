package backend

import (
	"errors"
	"fmt"
	"math"

	"github.com/ekisa-team/rkbackend/internal/model"
)

// DefaultMaxPoolBytes caps the total pool size unless overridden.
const DefaultMaxPoolBytes int64 = 1 << 30

var (
	errPoolLimit    = errors.New("pool exceeds configured memory limit")
	errSizeOverflow = errors.New("pool size overflows")
	errBadWidth     = errors.New("max batch width must be positive")
)

// Allocator returns a buffer of exactly size bytes.
type Allocator func(size int64) ([]byte, error)

// PlanOption configures Plan.
type PlanOption func(*planConfig)

type planConfig struct {
	alloc    Allocator
	maxBytes int64
}

// WithAllocator replaces the default heap allocator.
func WithAllocator(a Allocator) PlanOption {
	return func(c *planConfig) {
		c.alloc = a
	}
}

// WithMaxBytes sets the ceiling on total pool bytes. Zero or negative
// disables the limit.
func WithMaxBytes(n int64) PlanOption {
	return func(c *planConfig) {
		c.maxBytes = n
	}
}

func heapAlloc(size int64) ([]byte, error) {
	return make([]byte, size), nil
}

// Pool holds one output buffer per batch slot. Every slot stores all
// declared outputs back to back in declaration order.
type Pool struct {
	slots    [][]byte
	offsets  []int64
	sizes    []int64
	slotSize int64
}

// Plan computes per-output byte sizes for d and allocates width slots.
// Each output occupies at least one byte of its slot.
func Plan(d *model.Descriptor, width int, opts ...PlanOption) (*Pool, error) {
	cfg := planConfig{alloc: heapAlloc, maxBytes: DefaultMaxPoolBytes}
	for _, opt := range opts {
		opt(&cfg)
	}

	if width <= 0 {
		return nil, &AllocError{Model: d.Name(), Err: errBadWidth}
	}

	outputs := d.Outputs()
	p := &Pool{
		offsets: make([]int64, len(outputs)),
		sizes:   make([]int64, len(outputs)),
	}

	for k, o := range outputs {
		size, err := o.ByteSize()
		if err != nil {
			return nil, &AllocError{Model: d.Name(), Err: fmt.Errorf("output %q: %w", o.Name, err)}
		}
		region := max(size, 1)
		if p.slotSize > math.MaxInt64-region {
			return nil, &AllocError{Model: d.Name(), Err: errSizeOverflow}
		}
		p.offsets[k] = p.slotSize
		p.sizes[k] = size
		p.slotSize += region
	}

	if p.slotSize > math.MaxInt64/int64(width) {
		return nil, &AllocError{Model: d.Name(), Err: errSizeOverflow}
	}
	total := p.slotSize * int64(width)
	if cfg.maxBytes > 0 && total > cfg.maxBytes {
		return nil, &AllocError{Model: d.Name(), Bytes: total, Err: fmt.Errorf("%w (%d bytes)", errPoolLimit, cfg.maxBytes)}
	}

	p.slots = make([][]byte, width)
	for s := range p.slots {
		buf, err := cfg.alloc(p.slotSize)
		if err != nil {
			return nil, &AllocError{Model: d.Name(), Bytes: total, Err: err}
		}
		if int64(len(buf)) != p.slotSize {
			return nil, &AllocError{Model: d.Name(), Bytes: total, Err: fmt.Errorf("allocator returned %d bytes, want %d", len(buf), p.slotSize)}
		}
		p.slots[s] = buf
	}

	return p, nil
}

// Width returns the number of slots.
func (p *Pool) Width() int { return len(p.slots) }

// SlotSize returns the byte size of every slot.
func (p *Pool) SlotSize() int64 { return p.slotSize }

// Outputs returns the number of outputs stored per slot.
func (p *Pool) Outputs() int { return len(p.sizes) }

// Slot returns the buffer for slot s.
func (p *Pool) Slot(s int) []byte { return p.slots[s] }

// Offset returns the byte offset of output k inside a slot.
func (p *Pool) Offset(k int) int64 { return p.offsets[k] }

// Size returns the declared byte size of output k.
func (p *Pool) Size(k int) int64 { return p.sizes[k] }

// Region returns the bytes reserved for output k in slot s.
func (p *Pool) Region(s, k int) []byte {
	start := p.offsets[k]
	return p.slots[s][start : start+max(p.sizes[k], 1)]
}

// Zero clears slot s.
func (p *Pool) Zero(s int) {
	clear(p.slots[s])
}
