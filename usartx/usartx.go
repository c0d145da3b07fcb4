// usartx/usartx.go

// Package usartx is a non-blocking USART transaction engine for the STM32F1
// family, with an optional DMA bulk-transfer path. Every byte-level operation
// is a single poll that returns immediately: a byte, ErrWouldBlock, or a line
// error. Callers wanting blocking semantics layer a retry loop on top (see
// the *Context helpers and BlockingUART).
//
// A configured Line can be split into independent Tx and Rx halves, and each
// half can be promoted to a DMA-capable handle that moves whole buffers
// without CPU involvement, one-shot or circular. Buffer and channel ownership
// transfers into the running transfer and is handed back on Wait/Release.
//
// On stm32f103 builds the package drives the memory-mapped USART1..3 and
// DMA1 blocks directly. On all other builds a simulated register file
// (SimPeripheral) stands in, so the full engine runs under go test on the
// host.
package usartx

import "errors"

// Line errors reported by ReadByte. Each is reported at most once per
// offending byte; detection always performs the hardware clear sequence
// (status read then data read) before the error is returned.
var (
	ErrParity  = errors.New("usartx: parity error")
	ErrFraming = errors.New("usartx: framing error")
	ErrNoise   = errors.New("usartx: noise error")
	ErrOverrun = errors.New("usartx: rx overrun")
)

var (
	// ErrWouldBlock means "not ready yet, retry later". It is a retry
	// signal, not an error condition on the line.
	ErrWouldBlock = errors.New("usartx: would block")

	// ErrInvalidPins is returned by Open when the pin pair is not a legal
	// mapping for the chosen USART instance.
	ErrInvalidPins = errors.New("usartx: invalid pin mapping for instance")

	// ErrCircBufferSize is returned by CircRead for buffers that cannot be
	// split into two equal halves.
	ErrCircBufferSize = errors.New("usartx: circular buffer length must be even and non-zero")

	// ErrCircOverrun means the DMA engine lapped the reader: the half being
	// handed out was already reclaimed by the engine.
	ErrCircOverrun = errors.New("usartx: circular transfer overrun")
)

// Parity defines the parity setting of the line.
type Parity uint8

const (
	// ParityNone disables parity generation and checking.
	ParityNone Parity = iota
	// ParityEven sets even parity (total number of 1 bits is even).
	ParityEven
	// ParityOdd sets odd parity (total number of 1 bits is odd).
	ParityOdd
)

// StopBits selects the stop-bit length. The constant order matches the
// hardware field encoding and must not be rearranged.
type StopBits uint8

const (
	Stop1     StopBits = iota // 1 stop bit
	StopHalf                  // 0.5 stop bits
	Stop2                     // 2 stop bits
	Stop1Half                 // 1.5 stop bits
)

// Event identifies an interrupt source that can be enabled with Listen and
// disabled with Unlisten. Enabling an event only raises the corresponding
// interrupt-enable bit; vector wiring is the surrounding runtime's job.
type Event uint8

const (
	// EventRxReady fires when a received byte is ready to be read.
	EventRxReady Event = iota
	// EventTxEmpty fires when the transmit holding register can accept a byte.
	EventTxEmpty
	// EventIdle fires when an idle line is detected.
	EventIdle
)

// DefaultBaudRate is used when Config.BaudRate is zero.
const DefaultBaudRate = 115200

// Config describes a USART line. It is immutable once passed to Open.
type Config struct {
	BaudRate uint32
	Parity   Parity
	StopBits StopBits
}

// DefaultConfig returns 115200 8N1.
func DefaultConfig() Config {
	return Config{BaudRate: DefaultBaudRate, Parity: ParityNone, StopBits: Stop1}
}

// WithBaudRate returns a copy of c with the baud rate replaced.
func (c Config) WithBaudRate(baud uint32) Config {
	c.BaudRate = baud
	return c
}

// WithParity returns a copy of c with the parity mode replaced.
func (c Config) WithParity(p Parity) Config {
	c.Parity = p
	return c
}

// WithStopBits returns a copy of c with the stop-bit setting replaced.
func (c Config) WithStopBits(s StopBits) Config {
	c.StopBits = s
	return c
}
