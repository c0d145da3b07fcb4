// usartx/dma.go

package usartx

import "unsafe"

// The DMA model owns three things for a transfer's lifetime: a direction
// handle, a channel, and the caller's buffer. The buffer's address and
// length must stay valid and untouched while the engine runs; that is why
// transfers take ownership and hand the slice back only on Wait, Stop or
// Release. Misuse that the type system cannot rule out (starting a second
// transfer on a busy handle, reusing a finished transfer) is a programming
// error and panics.

// RxDMA is a receive handle promoted with a DMA channel. The peripheral's
// receive DMA request stays armed until Release.
type RxDMA struct {
	rx       *Rx
	ch       Channel
	inflight bool
}

// WithDMA promotes the receive handle, consuming it together with the
// channel. The rx DMA request line is armed here, before any transfer
// exists, and disarmed only by Release.
func (rx *Rx) WithDMA(ch Channel) *RxDMA {
	if rx.dma {
		panic("usartx: receive handle already promoted")
	}
	rx.dma = true
	rx.regs.ModifyControl(CtrlDMARx, 0)
	return &RxDMA{rx: rx, ch: ch}
}

// Release stops the channel, disarms the peripheral's rx DMA request and
// returns the receive handle and channel. The channel stop completes before
// the request line is cleared.
func (d *RxDMA) Release() (*Rx, Channel) {
	d.ch.Stop()
	d.disarm()
	return d.rx, d.ch
}

// disarm clears the rx request line and hands the promotion back, so the
// returned handle can be promoted again.
func (d *RxDMA) disarm() {
	d.rx.regs.ModifyControl(0, CtrlDMARx)
	d.rx.dma = false
}

// Read starts a one-shot peripheral-to-memory transfer filling buf and
// returns the running transfer. The handle and buf are owned by the
// transfer until it is waited on, stopped or released.
func (d *RxDMA) Read(buf []byte) *RxTransfer {
	d.program(buf, ChannelConfig{Direction: PeriphToMem, Priority: PriorityMedium})
	d.rx.stats.transferStarted()
	return &RxTransfer{
		handle: d.rx,
		ch:     d.ch,
		disarm: d.disarm,
		buf:    buf,
		busy:   &d.inflight,
		stats:  d.rx.stats,
	}
}

func (d *RxDMA) program(buf []byte, cfg ChannelConfig) {
	if d.inflight {
		panic("usartx: transfer already in flight")
	}
	if len(buf) == 0 {
		panic("usartx: empty transfer buffer")
	}
	d.inflight = true
	d.ch.SetPeripheralAddress(d.rx.regs.DataAddr(), false)
	d.ch.SetMemoryAddress(uintptr(unsafe.Pointer(&buf[0])), true)
	d.ch.SetTransferLength(len(buf))
	d.ch.Configure(cfg)
	releaseFence()
	d.ch.Start()
}

// TxDMA is a transmit handle promoted with a DMA channel. The peripheral's
// transmit DMA request stays armed until Release.
type TxDMA struct {
	tx       *Tx
	ch       Channel
	inflight bool
}

// WithDMA promotes the transmit handle, consuming it together with the
// channel. The tx DMA request line is armed here and disarmed only by
// Release.
func (tx *Tx) WithDMA(ch Channel) *TxDMA {
	if tx.dma {
		panic("usartx: transmit handle already promoted")
	}
	tx.dma = true
	tx.regs.ModifyControl(CtrlDMATx, 0)
	return &TxDMA{tx: tx, ch: ch}
}

// Release stops the channel, disarms the peripheral's tx DMA request and
// returns the transmit handle and channel. The channel stop completes
// before the request line is cleared.
func (d *TxDMA) Release() (*Tx, Channel) {
	d.ch.Stop()
	d.disarm()
	return d.tx, d.ch
}

// disarm clears the tx request line and hands the promotion back.
func (d *TxDMA) disarm() {
	d.tx.regs.ModifyControl(0, CtrlDMATx)
	d.tx.dma = false
}

// Write starts a one-shot memory-to-peripheral transfer sending buf and
// returns the running transfer. All CPU writes that populated buf are
// ordered before the engine starts.
func (d *TxDMA) Write(buf []byte) *TxTransfer {
	if d.inflight {
		panic("usartx: transfer already in flight")
	}
	if len(buf) == 0 {
		panic("usartx: empty transfer buffer")
	}
	d.inflight = true
	d.ch.SetPeripheralAddress(d.tx.regs.DataAddr(), false)
	d.ch.SetMemoryAddress(uintptr(unsafe.Pointer(&buf[0])), true)
	d.ch.SetTransferLength(len(buf))
	d.ch.Configure(ChannelConfig{Direction: MemToPeriph, Priority: PriorityMedium})
	releaseFence()
	d.ch.Start()
	d.tx.stats.transferStarted()
	return &TxTransfer{
		handle: d.tx,
		ch:     d.ch,
		disarm: d.disarm,
		buf:    buf,
		busy:   &d.inflight,
		stats:  d.tx.stats,
	}
}

// Transfer is a running one-shot DMA transfer. It owns the direction handle,
// the channel and the buffer until one of Wait, Stop or Release returns
// them.
type Transfer[H any] struct {
	handle   H
	ch       Channel
	disarm   func() // clears the request line and the promotion flag
	buf      []byte
	busy     *bool
	stats    *Stats
	finished bool
}

// RxTransfer is a one-shot transfer started from a receive handle.
type RxTransfer = Transfer[*Rx]

// TxTransfer is a one-shot transfer started from a transmit handle.
type TxTransfer = Transfer[*Tx]

// Done reports whether the engine has moved the full transfer length.
func (t *Transfer[H]) Done() bool {
	return t.ch.Flags()&FlagComplete != 0
}

// Wait blocks until the transfer completes, halts the channel and hands the
// buffer back. The DMA request line stays armed so another transfer can be
// started on the same promoted handle.
func (t *Transfer[H]) Wait() []byte {
	for !t.Done() {
		gosched()
	}
	t.finish()
	return t.buf
}

// Stop cancels the transfer and hands the buffer back. Cancellation is
// synchronous and deterministic: the channel halts mid-word at worst.
func (t *Transfer[H]) Stop() []byte {
	t.finish()
	return t.buf
}

// Release tears the transfer down completely: the channel is stopped first,
// only then is the peripheral's DMA request line disarmed, and ownership of
// the direction handle, channel and buffer returns to the caller. The
// returned handle is no longer promoted and may be promoted again.
func (t *Transfer[H]) Release() (H, Channel, []byte) {
	if !t.finished {
		t.finish()
	}
	t.disarm()
	return t.handle, t.ch, t.buf
}

func (t *Transfer[H]) finish() {
	if t.finished {
		panic("usartx: transfer already finished")
	}
	t.finished = true
	// Observe completion before the CPU touches the buffer.
	acquireFence()
	t.ch.Stop()
	t.ch.ClearFlags(FlagHalfComplete | FlagComplete)
	*t.busy = false
	t.stats.transferFinished()
}

// Half names the two halves of a circular buffer.
type Half uint8

const (
	FirstHalf Half = iota
	SecondHalf
)

func (h Half) String() string {
	if h == FirstHalf {
		return "first"
	}
	return "second"
}

// CircBuffer is a running circular receive transfer over a buffer split
// into two equal halves. The engine refills the halves in alternation; the
// caller may only ever touch the half the engine has finished with.
type CircBuffer struct {
	d        *RxDMA
	buf      []byte
	next     Half // half the caller reads next
	released bool
}

// CircRead starts a continuous peripheral-to-memory transfer over buf,
// treated as two equal halves. The buffer length must be even and non-zero.
// The engine wraps forever; consume halves with Read or ReadableHalf.
func (d *RxDMA) CircRead(buf []byte) (*CircBuffer, error) {
	if len(buf) == 0 || len(buf)%2 != 0 {
		return nil, ErrCircBufferSize
	}
	d.program(buf, ChannelConfig{Direction: PeriphToMem, Circular: true, Priority: PriorityMedium})
	d.rx.stats.transferStarted()
	return &CircBuffer{d: d, buf: buf, next: FirstHalf}, nil
}

// ReadableHalf reports which half is ready for the caller. It returns
// ErrWouldBlock while the engine is still filling the expected half, and
// ErrCircOverrun when the engine has lapped the caller, in which case the
// data in the expected half is already being overwritten.
func (c *CircBuffer) ReadableHalf() (Half, error) {
	c.check()
	f := c.d.ch.Flags()
	switch c.next {
	case FirstHalf:
		if f&FlagComplete != 0 {
			// Second half finished too: the engine is back in the first
			// half, racing any read of it.
			c.d.rx.stats.circOverrun()
			return FirstHalf, ErrCircOverrun
		}
		if f&FlagHalfComplete != 0 {
			return FirstHalf, nil
		}
	case SecondHalf:
		if f&FlagHalfComplete != 0 {
			c.d.rx.stats.circOverrun()
			return SecondHalf, ErrCircOverrun
		}
		if f&FlagComplete != 0 {
			return SecondHalf, nil
		}
	}
	return c.next, ErrWouldBlock
}

// Read copies the ready half into p and advances to the other half. It
// returns ErrWouldBlock while no half is ready, ErrCircOverrun if the engine
// lapped the caller before or during the copy. On success n is the half
// length (or len(p) if smaller).
func (c *CircBuffer) Read(p []byte) (int, error) {
	half, err := c.ReadableHalf()
	if err != nil {
		return 0, err
	}

	consumed := FlagHalfComplete
	if half == SecondHalf {
		consumed = FlagComplete
	}
	c.d.ch.ClearFlags(consumed)
	acquireFence()

	h := len(c.buf) / 2
	src := c.buf[:h]
	if half == SecondHalf {
		src = c.buf[h:]
	}
	n := copy(p, src)

	// If the same half completed again while we copied, the engine wrote
	// under the read.
	if c.d.ch.Flags()&consumed != 0 {
		c.d.rx.stats.circOverrun()
		return n, ErrCircOverrun
	}

	if half == FirstHalf {
		c.next = SecondHalf
	} else {
		c.next = FirstHalf
	}
	c.d.rx.stats.circHandoff()
	return n, nil
}

// HalfLen is the size of one half in bytes.
func (c *CircBuffer) HalfLen() int { return len(c.buf) / 2 }

// Stop halts the engine. The circular buffer can no longer be read; call
// Release to recover the handle and channel.
func (c *CircBuffer) Stop() {
	c.check()
	c.d.ch.Stop()
}

// Release stops the channel, disarms the rx DMA request (in that order) and
// returns the receive handle and channel. The buffer was already handed
// back piecewise through the half reads.
func (c *CircBuffer) Release() (*Rx, Channel) {
	c.check()
	c.released = true
	c.d.inflight = false
	c.d.rx.stats.transferFinished()
	return c.d.Release()
}

func (c *CircBuffer) check() {
	if c.released {
		panic("usartx: use of released circular buffer")
	}
}
