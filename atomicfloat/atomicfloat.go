package atomicfloat

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Never hold an unsafe.Pointer derived from &val across more than a few
// lines: the gc can relocate val once it looks unreferenced, stranding an
// earlier-computed pointer at a stale address.

// Float64 encapsulates a float64 for non-locking atomic operations. Used by
// the worker pool to publish the best score observed so far across workers
// without taking the MCTS tree lock.
type Float64 struct {
	val float64
}

// New wraps a float64 for atomic operations.
func New(val float64) *Float64 {
	return &Float64{
		val: val,
	}
}

// Read atomically reads the float64.
func (af *Float64) Read() (value float64) {
	bits := atomic.LoadUint64((*uint64)(unsafe.Pointer(&af.val)))
	return math.Float64frombits(bits)
}

// Add atomically adds addend to the float64. Unlike a CAS-retry loop that
// blindly retries until it wins, a lost race here is returned to the
// caller (succeeded=false) rather than retried, since the caller may want
// to drop the update or recompute against the new value instead.
func (af *Float64) Add(addend float64) (newVal float64, succeeded bool) {
	old := af.Read()
	newVal = old + addend
	succeeded = atomic.CompareAndSwapUint64(
		(*uint64)(unsafe.Pointer(&af.val)),
		math.Float64bits(old),
		math.Float64bits(newVal))
	return
}

// Set sets the float64, returns true on success.
func (af *Float64) Set(newVal float64) (succeeded bool) {
	old := af.Read()
	succeeded = atomic.CompareAndSwapUint64(
		(*uint64)(unsafe.Pointer(&af.val)),
		math.Float64bits(old),
		math.Float64bits(newVal))
	return
}

// RaiseMax retries until val is atomically replaced by candidate, or
// candidate turns out to no longer be an improvement over a value written
// by a racing worker. Returns true if candidate became the new value.
func (af *Float64) RaiseMax(candidate float64) bool {
	for {
		old := af.Read()
		if candidate <= old {
			return false
		}
		if atomic.CompareAndSwapUint64(
			(*uint64)(unsafe.Pointer(&af.val)),
			math.Float64bits(old),
			math.Float64bits(candidate)) {
			return true
		}
	}
}
