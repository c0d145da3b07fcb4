//go:build !usartxdebug

package usartx

type Stats struct{}

func newStats() *Stats { return &Stats{} }

func (st *Stats) Snapshot() Stats { return Stats{} }

func (l *Line) DebugStats() Stats { return Stats{} }

func (st *Stats) pollRead()    {}
func (st *Stats) wouldBlock()  {}
func (st *Stats) lineError()   {}
func (st *Stats) byteRead()    {}
func (st *Stats) byteWritten() {}
func (st *Stats) flushed()     {}

func (st *Stats) transferStarted()  {}
func (st *Stats) transferFinished() {}
func (st *Stats) circHandoff()      {}
func (st *Stats) circOverrun()      {}
