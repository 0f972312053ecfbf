package vm

import "sync/atomic"

// Allocator provides slot storage for objects. Inline arrays and
// out-of-line blocks are both obtained through it.
type Allocator interface {
	AllocateSlots(n int) []Value
}

// WriteBarrier is notified after an object-typed value is stored into a
// slot, so an incremental collector can keep its invariants.
type WriteBarrier interface {
	Barrier(o *Object, slot int)
}

// BarrierFunc adapts a function to the WriteBarrier interface.
type BarrierFunc func(o *Object, slot int)

func (f BarrierFunc) Barrier(o *Object, slot int) { f(o, slot) }

type nopBarrier struct{}

func (nopBarrier) Barrier(*Object, int) {}

// SlotHeap is the default Allocator. It hands out Go-allocated blocks and
// keeps allocation counters.
type SlotHeap struct {
	blocks atomic.Int64
	slots  atomic.Int64
}

func NewSlotHeap() *SlotHeap {
	return &SlotHeap{}
}

// AllocateSlots returns n slots initialised to undefined.
func (h *SlotHeap) AllocateSlots(n int) []Value {
	if n <= 0 {
		return nil
	}
	h.blocks.Add(1)
	h.slots.Add(int64(n))
	// The zero Value is undefined.
	return make([]Value, n)
}

// Blocks returns the number of blocks allocated so far.
func (h *SlotHeap) Blocks() int64 { return h.blocks.Load() }

// Slots returns the total number of slots allocated so far.
func (h *SlotHeap) Slots() int64 { return h.slots.Load() }
