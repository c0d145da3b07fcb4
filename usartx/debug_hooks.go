//go:build usartxdebug

package usartx

import "sync/atomic"

func (st *Stats) pollRead()    { atomic.AddUint32(&st.PollReads, 1) }
func (st *Stats) wouldBlock()  { atomic.AddUint32(&st.WouldBlocks, 1) }
func (st *Stats) lineError()   { atomic.AddUint32(&st.LineErrors, 1) }
func (st *Stats) byteRead()    { atomic.AddUint32(&st.BytesRead, 1) }
func (st *Stats) byteWritten() { atomic.AddUint32(&st.BytesSent, 1) }
func (st *Stats) flushed()     { atomic.AddUint32(&st.Flushes, 1) }

func (st *Stats) transferStarted()  { atomic.AddUint32(&st.TransfersStarted, 1) }
func (st *Stats) transferFinished() { atomic.AddUint32(&st.TransfersFinished, 1) }
func (st *Stats) circHandoff()      { atomic.AddUint32(&st.CircHandoffs, 1) }
func (st *Stats) circOverrun()      { atomic.AddUint32(&st.CircOverruns, 1) }
