//go:build usartxdebug

package usartx

import "sync/atomic"

// Stats holds counters since the last reset. Enabled with the usartxdebug
// build tag; without it the hooks compile to nothing.
type Stats struct {
	// Poll-level
	PollReads   uint32 // ReadByte polls issued
	WouldBlocks uint32 // polls answered with ErrWouldBlock
	LineErrors  uint32 // faults detected and cleared
	BytesRead   uint32
	BytesSent   uint32
	Flushes     uint32 // flush polls that reported wire-idle

	// DMA
	TransfersStarted  uint32
	TransfersFinished uint32
	CircHandoffs      uint32 // half handbacks completed
	CircOverruns      uint32 // engine lapped the reader
}

func newStats() *Stats { return &Stats{} }

// Snapshot returns a copy safe to read while the line is in use.
func (st *Stats) Snapshot() Stats {
	return Stats{
		PollReads:   atomic.LoadUint32(&st.PollReads),
		WouldBlocks: atomic.LoadUint32(&st.WouldBlocks),
		LineErrors:  atomic.LoadUint32(&st.LineErrors),
		BytesRead:   atomic.LoadUint32(&st.BytesRead),
		BytesSent:   atomic.LoadUint32(&st.BytesSent),
		Flushes:     atomic.LoadUint32(&st.Flushes),

		TransfersStarted:  atomic.LoadUint32(&st.TransfersStarted),
		TransfersFinished: atomic.LoadUint32(&st.TransfersFinished),
		CircHandoffs:      atomic.LoadUint32(&st.CircHandoffs),
		CircOverruns:      atomic.LoadUint32(&st.CircOverruns),
	}
}

// DebugStats returns the counters shared by the line and anything split
// from it.
func (l *Line) DebugStats() Stats { return l.stats.Snapshot() }
