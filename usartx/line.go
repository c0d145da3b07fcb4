// usartx/line.go

package usartx

import "io"

// Instance identifies one USART peripheral.
type Instance uint8

const (
	USART1 Instance = iota + 1
	USART2
	USART3
)

func (i Instance) String() string {
	switch i {
	case USART1:
		return "USART1"
	case USART2:
		return "USART2"
	case USART3:
		return "USART3"
	}
	return "USART?"
}

// Pin is a GPIO identifier, encoded port*16+pin (PA0=0, PB0=16, ...). Only
// identity matters here: muxing the pin into its alternate function is the
// caller's job before Open.
type Pin uint8

const (
	PA2  Pin = 2
	PA3  Pin = 3
	PA9  Pin = 9
	PA10 Pin = 10
	PB6  Pin = 16 + 6
	PB7  Pin = 16 + 7
	PB10 Pin = 16 + 10
	PB11 Pin = 16 + 11
	PC10 Pin = 32 + 10
	PC11 Pin = 32 + 11
	PD5  Pin = 48 + 5
	PD6  Pin = 48 + 6
	PD8  Pin = 48 + 8
	PD9  Pin = 48 + 9
)

// Pins is the TX/RX pin pair a line is opened on.
type Pins struct {
	TX Pin
	RX Pin
}

// pinMappings is the table of legal pin pairs per instance with their
// alternate-function remap codes (RM0008 section 9.3.8). Constructed lines
// are validated against it; anything not listed is rejected.
var pinMappings = []struct {
	inst  Instance
	pins  Pins
	remap uint8
}{
	{USART1, Pins{TX: PA9, RX: PA10}, 0},
	{USART1, Pins{TX: PB6, RX: PB7}, 1},
	{USART2, Pins{TX: PA2, RX: PA3}, 0},
	{USART2, Pins{TX: PD5, RX: PD6}, 0},
	{USART3, Pins{TX: PB10, RX: PB11}, 0},
	{USART3, Pins{TX: PC10, RX: PC11}, 1},
	{USART3, Pins{TX: PD8, RX: PD9}, 0b11},
}

func remapCode(inst Instance, pins Pins) (uint8, bool) {
	for _, m := range pinMappings {
		if m.inst == inst && m.pins == pins {
			return m.remap, true
		}
	}
	return 0, false
}

// DMAChannels returns the DMA1 channel numbers wired to an instance's
// receive and transmit request lines.
func DMAChannels(inst Instance) (rx, tx uint8) {
	switch inst {
	case USART1:
		return 5, 4
	case USART2:
		return 6, 7
	case USART3:
		return 3, 2
	}
	return 0, 0
}

// Line is the combined, exclusively-owned handle to one configured USART
// instance. It is created by Open and consumed by Split or Release; using it
// afterwards is a programming error and panics.
type Line struct {
	regs     Regs
	pins     Pins
	inst     Instance
	baud     uint32
	consumed bool
	stats    *Stats
}

// Open configures a USART line and takes ownership of the peripheral and
// pin pair.
//
// The pin pair must be a legal mapping for the instance, or ErrInvalidPins
// is returned before the hardware is touched. A baud rate unreachable at the
// peripheral clock panics: the configuration itself is invalid.
//
// The sequence mirrors the reference manual: enable and reset the
// peripheral, program the remap, the divisor, the frame format, then enable
// the line with receiver and transmitter.
func Open(p Peripheral, pins Pins, cfg Config) (*Line, error) {
	code, ok := remapCode(p.Instance(), pins)
	if !ok {
		return nil, ErrInvalidPins
	}
	pl := resolvePlan(cfg, p.ClockHz())

	p.Enable()
	p.Reset()
	p.Remap(code)

	r := p.Regs()
	r.SetBaudDivisor(pl.divisor)
	r.ModifyControl(pl.control, CtrlWordLong|CtrlParityEnable|CtrlParityOdd|CtrlStopMask)
	r.ModifyControl(CtrlEnable|CtrlRxEnable|CtrlTxEnable, 0)

	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &Line{regs: r, pins: pins, inst: p.Instance(), baud: baud, stats: newStats()}, nil
}

func (l *Line) check() {
	if l.consumed {
		panic("usartx: use of split or released line")
	}
}

// Instance reports which USART this line drives.
func (l *Line) Instance() Instance { return l.inst }

// ReadByte polls for one received byte. See Rx.ReadByte.
func (l *Line) ReadByte() (byte, error) {
	l.check()
	return readData(l.regs, l.stats)
}

// WriteByte polls the transmitter with one byte. See Tx.WriteByte.
func (l *Line) WriteByte(b byte) error {
	l.check()
	return writeData(l.regs, l.stats, b)
}

// Flush reports nil once the wire is idle. See Tx.Flush.
func (l *Line) Flush() error {
	l.check()
	return flush(l.regs, l.stats)
}

// Listen enables the interrupt for an event.
func (l *Line) Listen(e Event) {
	l.check()
	l.regs.ModifyControl(eventBit(e), 0)
}

// Unlisten disables the interrupt for an event.
func (l *Line) Unlisten(e Event) {
	l.check()
	l.regs.ModifyControl(0, eventBit(e))
}

// Split consumes the line and produces its independent transmit and receive
// halves. There is no way back to a combined handle; the two halves can be
// polled, interrupt-enabled and DMA-promoted separately.
func (l *Line) Split() (*Tx, *Rx) {
	l.check()
	l.consumed = true
	return &Tx{regs: l.regs, inst: l.inst, baud: l.baud, stats: l.stats},
		&Rx{regs: l.regs, inst: l.inst, baud: l.baud, stats: l.stats}
}

// Release consumes the line and hands the register file and pins back to the
// caller. The hardware line stays enabled; any further teardown is the
// caller's decision.
func (l *Line) Release() (Regs, Pins) {
	l.check()
	l.consumed = true
	return l.regs, l.pins
}

// Rx is the receive half of a split line. It sees only receive-side status
// and interrupt-enable bits.
type Rx struct {
	regs  Regs
	inst  Instance
	baud  uint32
	stats *Stats
	dma   bool // promoted via WithDMA
}

// ReadByte polls for one received byte. It returns the byte, ErrWouldBlock
// when nothing has arrived, or a line error after performing the fault clear
// sequence. It never suspends.
func (rx *Rx) ReadByte() (byte, error) { return readData(rx.regs, rx.stats) }

// Listen enables the receive-ready interrupt.
func (rx *Rx) Listen() { rx.regs.ModifyControl(CtrlRxReadyIRQ, 0) }

// Unlisten disables the receive-ready interrupt.
func (rx *Rx) Unlisten() { rx.regs.ModifyControl(0, CtrlRxReadyIRQ) }

// Tx is the transmit half of a split line. It sees only transmit-side status
// and interrupt-enable bits.
type Tx struct {
	regs  Regs
	inst  Instance
	baud  uint32
	stats *Stats
	dma   bool // promoted via WithDMA
}

// WriteByte offers one byte to the transmitter. It returns nil if the byte
// was accepted and ErrWouldBlock if the holding register is full. Accepted
// means queued for send, not sent; use Flush for the on-the-wire guarantee.
func (tx *Tx) WriteByte(b byte) error { return writeData(tx.regs, tx.stats, b) }

// Flush reports nil once the last accepted byte has left the shift register.
func (tx *Tx) Flush() error { return flush(tx.regs, tx.stats) }

// Listen enables the transmit-empty interrupt.
func (tx *Tx) Listen() { tx.regs.ModifyControl(CtrlTxEmptyIRQ, 0) }

// Unlisten disables the transmit-empty interrupt.
func (tx *Tx) Unlisten() { tx.regs.ModifyControl(0, CtrlTxEmptyIRQ) }

// Write implements io.Writer by spinning on WriteByte. It yields between
// retries and always accepts the whole slice.
func (tx *Tx) Write(p []byte) (int, error) {
	for _, b := range p {
		for tx.WriteByte(b) == ErrWouldBlock {
			gosched()
		}
	}
	return len(p), nil
}

// WriteString implements io.StringWriter.
func (tx *Tx) WriteString(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		for tx.WriteByte(s[i]) == ErrWouldBlock {
			gosched()
		}
	}
	return len(s), nil
}

var (
	_ io.Writer       = (*Tx)(nil)
	_ io.StringWriter = (*Tx)(nil)
)
