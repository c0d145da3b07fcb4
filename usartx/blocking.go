// usartx/blocking.go

package usartx

import (
	"context"
	"time"

	"github.com/jangala-dev/tinygo-usartx/x/mathx"
)

// Blocking helpers layered over the polling contract. The core itself never
// suspends; these loops retry ErrWouldBlock, yielding between polls, until
// the operation succeeds or the context ends. Timeout policy belongs to the
// caller's context.

// ReadByteContext polls for a byte until one arrives, a line error is
// detected, or ctx is done.
func (rx *Rx) ReadByteContext(ctx context.Context) (byte, error) {
	for {
		b, err := rx.ReadByte()
		if err != ErrWouldBlock {
			return b, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
			gosched()
		}
	}
}

// WriteContext writes all of p, retrying each refused byte, until done or
// ctx ends. It returns the number of bytes accepted.
func (tx *Tx) WriteContext(ctx context.Context, p []byte) (int, error) {
	for i, b := range p {
		for {
			if err := tx.WriteByte(b); err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			default:
				gosched()
			}
		}
	}
	return len(p), nil
}

// FlushContext polls until the wire is idle or ctx ends. Because the
// transmission-complete edge raises no notification here, the loop sleeps a
// couple of character times between polls instead of spinning.
func (tx *Tx) FlushContext(ctx context.Context) error {
	tick := drainTick(tx.baud)
	for {
		if err := tx.Flush(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tick):
		}
	}
}

// drainTick returns a short polling interval: roughly two character times
// at 8N1, bounded away from zero and from uselessly long sleeps.
func drainTick(baud uint32) time.Duration {
	perBit := time.Second / time.Duration(mathx.Max(baud, 1))
	return mathx.Clamp(2*10*perBit, 20*time.Microsecond, time.Millisecond)
}
