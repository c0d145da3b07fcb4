// usartx/registers.go

package usartx

// Status is the USART status register as named bits. The bit positions match
// the hardware SR layout, so the stm32f103 backend can return the register
// value directly.
type Status uint32

const (
	StatusParityErr  Status = 1 << 0 // parity check failed on the received byte
	StatusFramingErr Status = 1 << 1 // stop bit not found where expected
	StatusNoiseErr   Status = 1 << 2 // noise detected during sampling
	StatusOverrunErr Status = 1 << 3 // received byte lost, previous one unread
	StatusIdle       Status = 1 << 4
	StatusRxReady    Status = 1 << 5 // received byte ready in the data register
	StatusTxComplete Status = 1 << 6 // last byte has left the shift register
	StatusTxEmpty    Status = 1 << 7 // holding register can accept a byte
)

const statusErrMask = StatusParityErr | StatusFramingErr | StatusNoiseErr | StatusOverrunErr

// Control is the USART control state as one named bit set. The hardware
// backend scatters these across CR1/CR2/CR3; the abstraction keeps them in a
// single mask so the engine never needs to know which physical register a
// field lives in.
type Control uint32

const (
	CtrlEnable       Control = 1 << 0
	CtrlRxEnable     Control = 1 << 1
	CtrlTxEnable     Control = 1 << 2
	CtrlWordLong     Control = 1 << 3 // 9-bit frame: 8 data bits plus parity
	CtrlParityEnable Control = 1 << 4
	CtrlParityOdd    Control = 1 << 5
	CtrlRxReadyIRQ   Control = 1 << 6
	CtrlTxEmptyIRQ   Control = 1 << 7
	CtrlIdleIRQ      Control = 1 << 8
	CtrlDMARx        Control = 1 << 9  // assert the rx DMA request line
	CtrlDMATx        Control = 1 << 10 // assert the tx DMA request line

	ctrlStopPos              = 11
	CtrlStopMask     Control = 0b11 << ctrlStopPos // two-bit stop-bit field
)

// StopField returns the stop-bit code held in c.
func (c Control) StopField() StopBits {
	return StopBits((c & CtrlStopMask) >> ctrlStopPos)
}

// Regs is one USART register file, exposed as ordered, non-elidable accesses
// to named bitfields. Implemented by the memory-mapped block on stm32f103
// builds and by SimUSART everywhere else.
type Regs interface {
	// Status reads the status register.
	Status() Status
	// ReadData reads the data register, consuming the received byte. A data
	// read that follows a status read de-latches any pending fault flags.
	ReadData() byte
	// WriteData writes a byte into the transmit holding register.
	WriteData(b byte)
	// Control reads the current control state.
	Control() Control
	// ModifyControl clears then sets the given control bits in one
	// read-modify-write.
	ModifyControl(set, clear Control)
	// SetBaudDivisor programs the baud-rate divisor register.
	SetBaudDivisor(div uint32)
	// DataAddr is the fixed address of the data register, for DMA
	// programming. It never changes for the lifetime of the instance.
	DataAddr() uintptr
}

// Peripheral bundles one USART instance with the external collaborators the
// driver needs at construction time: the reset controller, the remap
// multiplexer and the bus clock. Everything else the driver does goes
// through Regs.
type Peripheral interface {
	Instance() Instance
	Regs() Regs
	// Enable ungates the peripheral clock. Called exactly once by Open.
	Enable()
	// Reset pulses the peripheral reset. Called exactly once by Open.
	Reset()
	// Remap programs the alternate-function mapping code for the pin pair.
	Remap(code uint8)
	// ClockHz is the current bus clock feeding this instance.
	ClockHz() uint32
}

// Direction of a DMA transfer relative to the peripheral.
type Direction uint8

const (
	PeriphToMem Direction = iota
	MemToPeriph
)

// Priority of a DMA channel. Serial transfers use PriorityMedium.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityVeryHigh
)

// ChannelConfig is the per-transfer channel setup. Element size is fixed at
// one byte on both sides for serial transfers.
type ChannelConfig struct {
	Direction Direction
	Circular  bool
	Priority  Priority
}

// ChannelFlags are the completion latches of a DMA channel.
type ChannelFlags uint8

const (
	// FlagHalfComplete is set when the first half of the transfer length has
	// been moved.
	FlagHalfComplete ChannelFlags = 1 << iota
	// FlagComplete is set when the full transfer length has been moved. In
	// circular mode the channel keeps running and the flag latches again on
	// every wrap.
	FlagComplete
)

// Channel is one DMA channel. The driver programs it, starts it and stops
// it; the channel is an independent bus master once started. Implemented by
// DMA1 channels on stm32f103 builds and by SimChannel everywhere else.
type Channel interface {
	// SetPeripheralAddress programs the peripheral-side address and whether
	// it increments after each element.
	SetPeripheralAddress(addr uintptr, increment bool)
	// SetMemoryAddress programs the memory-side address and whether it
	// increments after each element.
	SetMemoryAddress(addr uintptr, increment bool)
	// SetTransferLength programs the number of elements to move.
	SetTransferLength(n int)
	// Configure applies direction, circular mode and priority.
	Configure(cfg ChannelConfig)
	// Start arms the channel.
	Start()
	// Stop deterministically halts the channel. On return no further bus
	// accesses are issued; at worst the transfer stopped mid-word.
	Stop()
	// Flags reads the completion latches.
	Flags() ChannelFlags
	// ClearFlags resets the given completion latches.
	ClearFlags(f ChannelFlags)
	// Remaining is the count of elements still to be moved.
	Remaining() int
}
