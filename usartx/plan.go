// usartx/plan.go

package usartx

// minDivisor is the smallest divisor the peripheral can represent. A baud
// rate that needs less is unreachable at the given clock and is a
// programming error, not a runtime fault.
const minDivisor = 16

// plan holds the register values resolved from a Config and a clock. It is
// computed once by Open and never recomputed.
type plan struct {
	divisor uint32
	control Control // word length, parity and stop-bit fields only
}

// resolvePlan turns a declarative config into concrete register fields.
// Pure; panics if the requested baud rate is infeasible at clockHz.
//
// The word length is not a user-facing option: on this peripheral family the
// "word" includes the parity bit, so 8 data bits with parity need the 9-bit
// frame. Enabling parity therefore always sets CtrlWordLong, and disabling
// it always leaves it clear.
func resolvePlan(cfg Config, clockHz uint32) plan {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	div := clockHz / cfg.BaudRate
	if div < minDivisor {
		panic("usartx: impossible baud rate")
	}

	var c Control
	switch cfg.Parity {
	case ParityEven:
		c |= CtrlWordLong | CtrlParityEnable
	case ParityOdd:
		c |= CtrlWordLong | CtrlParityEnable | CtrlParityOdd
	}
	c |= Control(cfg.StopBits&0b11) << ctrlStopPos

	return plan{divisor: div, control: c}
}
