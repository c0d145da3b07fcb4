// usartx/adapter.go

package usartx

import "tinygo.org/x/drivers"

// BlockingUART adapts a split pair to the drivers.UART interface so the
// line can be handed straight to tinygo.org/x/drivers device drivers. Reads
// and writes spin on the polling engine, yielding between retries.
type BlockingUART struct {
	tx *Tx
	rx *Rx
}

var _ drivers.UART = (*BlockingUART)(nil)

// NewBlockingUART wraps the two halves of a split line. The line's format is
// fixed at Open; there is no reconfigure surface here.
func NewBlockingUART(tx *Tx, rx *Rx) *BlockingUART {
	return &BlockingUART{tx: tx, rx: rx}
}

// Buffered reports whether a received byte is waiting. There is no software
// buffer below this: at most one byte is ever in flight.
func (u *BlockingUART) Buffered() int {
	if u.rx.regs.Status()&StatusRxReady != 0 {
		return 1
	}
	return 0
}

// ReadByte blocks until a byte arrives or a line error is detected.
func (u *BlockingUART) ReadByte() (byte, error) {
	for {
		b, err := u.rx.ReadByte()
		if err != ErrWouldBlock {
			return b, err
		}
		gosched()
	}
}

// Read blocks until at least one byte is available, then drains greedily
// without blocking further. Line errors surface only when nothing was read.
func (u *BlockingUART) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := u.ReadByte()
	if err != nil {
		return 0, err
	}
	p[0] = b
	n := 1
	for n < len(p) {
		b, err := u.rx.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

// WriteByte blocks until the transmitter accepts the byte.
func (u *BlockingUART) WriteByte(b byte) error {
	for u.tx.WriteByte(b) == ErrWouldBlock {
		gosched()
	}
	return nil
}

// Write blocks until every byte of p has been accepted by the transmitter.
// Accepted is not sent; use the Tx Flush for wire-idle.
func (u *BlockingUART) Write(p []byte) (int, error) {
	return u.tx.Write(p)
}
