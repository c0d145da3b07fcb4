// usartx/fence.go

package usartx

import (
	"runtime"
	"sync/atomic"
)

// The DMA engine is an independent bus master. The fences below only need to
// stop the compiler and CPU from reordering ordinary buffer accesses across
// the channel hand-off point; they provide ordering, not mutual exclusion.
var fenceWord uint32

// releaseFence orders every CPU write that populated a transfer buffer
// before the register write that arms the channel.
func releaseFence() {
	atomic.StoreUint32(&fenceWord, atomic.LoadUint32(&fenceWord)+1)
}

// acquireFence orders the observation of a completion flag before any CPU
// read of the DMA-filled buffer.
func acquireFence() {
	_ = atomic.LoadUint32(&fenceWord)
}

func gosched() { runtime.Gosched() }
