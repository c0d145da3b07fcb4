// usartx/sim.go

//go:build !stm32f103

// Host backend: a simulated USART register file and DMA channel with no
// device deps, mirroring the real blocks closely enough that the whole
// engine runs under go test. Every register access is recorded in one
// ordered log shared by the peripheral and its channels, so tests can assert
// hardware-mandated sequences (fault clear order, stop-before-disarm).

package usartx

import (
	"fmt"
	"strings"
	"unsafe"
)

// CallLog is an ordered record of simulated register accesses.
type CallLog struct {
	entries []string
}

func (l *CallLog) add(format string, args ...any) {
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Entries returns the recorded accesses, oldest first.
func (l *CallLog) Entries() []string { return l.entries }

// Reset discards the record.
func (l *CallLog) Reset() { l.entries = nil }

// IndexOf returns the position of the first entry containing substr, or -1.
func (l *CallLog) IndexOf(substr string) int {
	for i, e := range l.entries {
		if strings.Contains(e, substr) {
			return i
		}
	}
	return -1
}

// Count returns how many entries contain substr.
func (l *CallLog) Count(substr string) int {
	n := 0
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

// SimPeripheral is a simulated USART instance plus its external
// collaborators. NewSim wires a fresh register file and log.
type SimPeripheral struct {
	Log *CallLog
	U   *SimUSART

	inst    Instance
	clockHz uint32

	Enabled   bool  // clock ungated
	Resets    int   // reset pulses seen
	RemapSeen []int // remap codes programmed, in order
}

// NewSim returns a simulated instance fed by a clock of clockHz.
func NewSim(inst Instance, clockHz uint32) *SimPeripheral {
	log := &CallLog{}
	return &SimPeripheral{
		Log:     log,
		U:       newSimUSART(log),
		inst:    inst,
		clockHz: clockHz,
	}
}

func (p *SimPeripheral) Instance() Instance { return p.inst }
func (p *SimPeripheral) Regs() Regs         { return p.U }
func (p *SimPeripheral) ClockHz() uint32    { return p.clockHz }

func (p *SimPeripheral) Enable() {
	p.Enabled = true
	p.Log.add("rcc.enable")
}

func (p *SimPeripheral) Reset() {
	p.Resets++
	p.Log.add("rcc.reset")
}

func (p *SimPeripheral) Remap(code uint8) {
	p.RemapSeen = append(p.RemapSeen, int(code))
	p.Log.add("afio.remap code=%d", code)
}

// NewChannel returns a simulated DMA channel sharing the peripheral's log.
func (p *SimPeripheral) NewChannel() *SimChannel {
	return &SimChannel{log: p.Log}
}

// SimUSART is the simulated register file. Fault flags latch until the
// status-read-then-data-read sequence, exactly like the hardware: a status
// read while a fault is latched arms the de-latch, the following data read
// performs it. A data read with no armed de-latch only consumes the rx byte.
type SimUSART struct {
	log *CallLog

	sr  Status
	cr  Control
	brr uint32

	rxByte     byte
	clearArmed bool

	// TxSink collects bytes written through WriteData.
	TxSink []byte

	// dataCell backs DataAddr so simulated DMA transfers have a real
	// memory-mapped-like target.
	dataCell byte
}

func newSimUSART(log *CallLog) *SimUSART {
	// Idle line: holding register empty, shifter idle.
	return &SimUSART{log: log, sr: StatusTxEmpty | StatusTxComplete}
}

func (u *SimUSART) Status() Status {
	u.log.add("usart.sr.read")
	if u.sr&statusErrMask != 0 {
		u.clearArmed = true
	}
	return u.sr
}

func (u *SimUSART) ReadData() byte {
	u.log.add("usart.dr.read")
	if u.clearArmed {
		u.sr &^= statusErrMask
		u.clearArmed = false
	}
	b := u.rxByte
	u.sr &^= StatusRxReady
	return b
}

func (u *SimUSART) WriteData(b byte) {
	u.log.add("usart.dr.write")
	u.TxSink = append(u.TxSink, b)
	u.sr &^= StatusTxEmpty | StatusTxComplete
}

func (u *SimUSART) Control() Control {
	return u.cr
}

func (u *SimUSART) ModifyControl(set, clear Control) {
	u.log.add("usart.cr.modify set=%#x clear=%#x", uint32(set), uint32(clear))
	u.cr = (u.cr &^ clear) | set
}

func (u *SimUSART) SetBaudDivisor(div uint32) {
	u.log.add("usart.brr.write div=%d", div)
	u.brr = div
}

func (u *SimUSART) DataAddr() uintptr {
	return uintptr(unsafe.Pointer(&u.dataCell))
}

// ControlBits returns the current control state without logging a read.
func (u *SimUSART) ControlBits() Control { return u.cr }

// Divisor returns the last programmed baud divisor.
func (u *SimUSART) Divisor() uint32 { return u.brr }

// InjectByte makes b the received byte and raises the data-ready flag. If a
// previous byte was never consumed the overrun fault latches, as on
// hardware.
func (u *SimUSART) InjectByte(b byte) {
	if u.sr&StatusRxReady != 0 {
		u.sr |= StatusOverrunErr
		return
	}
	u.rxByte = b
	u.sr |= StatusRxReady
}

// InjectFault latches the given fault flags.
func (u *SimUSART) InjectFault(f Status) {
	u.sr |= f & statusErrMask
}

// FinishByte simulates the holding register draining into the shifter.
func (u *SimUSART) FinishByte() {
	u.sr |= StatusTxEmpty
}

// Drain simulates the whole transmit path going idle: holding register
// empty and the last byte fully shifted out.
func (u *SimUSART) Drain() {
	u.sr |= StatusTxEmpty | StatusTxComplete
}

// SimChannel is a simulated DMA channel. Programming is recorded; data
// movement happens only when a test calls CompleteHalf or Complete, so the
// "engine" advances exactly when the test says so.
type SimChannel struct {
	log *CallLog

	PeriphAddr uintptr
	PeriphInc  bool
	MemAddr    uintptr
	MemInc     bool
	Length     int
	Cfg        ChannelConfig
	Started    bool
	Configured bool

	flags   ChannelFlags
	moved   int
	feed    []byte
	feedPos int

	// Sink collects bytes "sent" by memory-to-peripheral completions.
	Sink []byte
}

func (c *SimChannel) SetPeripheralAddress(addr uintptr, increment bool) {
	c.log.add("dma.cpar")
	c.PeriphAddr = addr
	c.PeriphInc = increment
}

func (c *SimChannel) SetMemoryAddress(addr uintptr, increment bool) {
	c.log.add("dma.cmar")
	c.MemAddr = addr
	c.MemInc = increment
}

func (c *SimChannel) SetTransferLength(n int) {
	c.log.add("dma.cndtr n=%d", n)
	c.Length = n
	c.moved = 0
}

func (c *SimChannel) Configure(cfg ChannelConfig) {
	c.log.add("dma.ccr.configure dir=%d circ=%t prio=%d", cfg.Direction, cfg.Circular, cfg.Priority)
	c.Cfg = cfg
	c.Configured = true
}

func (c *SimChannel) Start() {
	c.log.add("dma.start")
	c.Started = true
}

func (c *SimChannel) Stop() {
	c.log.add("dma.stop")
	c.Started = false
}

func (c *SimChannel) Flags() ChannelFlags { return c.flags }

func (c *SimChannel) ClearFlags(f ChannelFlags) {
	c.log.add("dma.ifcr clear=%#x", uint8(f))
	c.flags &^= f
}

func (c *SimChannel) Remaining() int { return c.Length - c.moved }

// Feed queues bytes for the engine to deliver on peripheral-to-memory
// completions.
func (c *SimChannel) Feed(p []byte) {
	c.feed = append(c.feed, p...)
}

func (c *SimChannel) memory(n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(c.MemAddr)), n)
}

func (c *SimChannel) fill(dst []byte) {
	n := copy(dst, c.feed[c.feedPos:])
	c.feedPos += n
	c.moved += n
}

// CompleteHalf moves the first half of the transfer and latches the
// half-complete flag.
func (c *SimChannel) CompleteHalf() {
	if !c.Started {
		panic("usartx: sim channel not started")
	}
	if c.Cfg.Direction == PeriphToMem {
		c.fill(c.memory(c.Length)[:c.Length/2])
	}
	c.flags |= FlagHalfComplete
}

// Complete finishes the transfer and latches the complete flag. For one-shot
// transfers the whole buffer is moved; for circular ones only the second
// half, continuing from CompleteHalf.
func (c *SimChannel) Complete() {
	if !c.Started {
		panic("usartx: sim channel not started")
	}
	switch c.Cfg.Direction {
	case PeriphToMem:
		mem := c.memory(c.Length)
		if c.Cfg.Circular {
			c.fill(mem[c.Length/2:])
			c.moved = 0 // engine wraps
		} else {
			c.fill(mem)
		}
	case MemToPeriph:
		c.Sink = append(c.Sink, c.memory(c.Length)...)
		c.moved = c.Length
	}
	c.flags |= FlagComplete
}
