// usartx/engine.go

package usartx

// The transaction engine is stateless software wrapping a stateful device:
// every operation is one poll against the live status register.

// lineError maps latched fault flags to their error value, highest priority
// first. Priority order is fixed: Parity > Framing > Noise > Overrun.
func (s Status) lineError() error {
	switch {
	case s&StatusParityErr != 0:
		return ErrParity
	case s&StatusFramingErr != 0:
		return ErrFraming
	case s&StatusNoiseErr != 0:
		return ErrNoise
	case s&StatusOverrunErr != 0:
		return ErrOverrun
	}
	return nil
}

// readData polls for one received byte. On a latched fault it performs the
// hardware-mandated clear sequence before reporting: read the status
// register, then the data register, in that order. Both reads happen on
// every detected error regardless of which fault it was; skipping either
// leaves the fault latched and the line stuck.
func readData(r Regs, st *Stats) (byte, error) {
	st.pollRead()
	s := r.Status()
	if err := s.lineError(); err != nil {
		_ = r.Status()
		_ = r.ReadData()
		st.lineError()
		return 0, err
	}
	if s&StatusRxReady != 0 {
		st.byteRead()
		return r.ReadData(), nil
	}
	st.wouldBlock()
	return 0, ErrWouldBlock
}

// writeData polls the holding register and writes b if it has room. Writes
// have no hardware error channel; the only negative outcome is ErrWouldBlock.
func writeData(r Regs, st *Stats, b byte) error {
	if r.Status()&StatusTxEmpty == 0 {
		st.wouldBlock()
		return ErrWouldBlock
	}
	r.WriteData(b)
	st.byteWritten()
	return nil
}

// flush reports nil only once the last byte has physically left the shift
// register, not merely the holding register. Callers needing a wire-idle
// guarantee must use flush, not writeData.
func flush(r Regs, st *Stats) error {
	if r.Status()&StatusTxComplete == 0 {
		st.wouldBlock()
		return ErrWouldBlock
	}
	st.flushed()
	return nil
}

// eventBit maps an Event to its interrupt-enable control bit.
func eventBit(e Event) Control {
	switch e {
	case EventRxReady:
		return CtrlRxReadyIRQ
	case EventTxEmpty:
		return CtrlTxEmptyIRQ
	case EventIdle:
		return CtrlIdleIRQ
	}
	return 0
}
