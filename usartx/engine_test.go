package usartx

import (
	"errors"
	"testing"
)

// openTestLine builds a simulated USART1 and opens a line on it with the
// default config.
func openTestLine(t *testing.T) (*Line, *SimPeripheral) {
	t.Helper()
	sim := NewSim(USART1, testClock)
	l, err := Open(sim, Pins{TX: PA9, RX: PA10}, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l, sim
}

func TestOpen_ProgramsPeripheral(t *testing.T) {
	l, sim := openTestLine(t)

	if !sim.Enabled {
		t.Fatal("peripheral clock not enabled")
	}
	if sim.Resets != 1 {
		t.Fatalf("resets = %d; want 1", sim.Resets)
	}
	if len(sim.RemapSeen) != 1 || sim.RemapSeen[0] != 0 {
		t.Fatalf("remap codes = %v; want [0]", sim.RemapSeen)
	}
	if sim.U.Divisor() != 625 {
		t.Fatalf("divisor = %d; want 625", sim.U.Divisor())
	}

	cr := sim.U.ControlBits()
	for _, bit := range []Control{CtrlEnable, CtrlRxEnable, CtrlTxEnable} {
		if cr&bit == 0 {
			t.Fatalf("control = %#x; bit %#x not set", cr, bit)
		}
	}
	if cr&(CtrlParityEnable|CtrlWordLong) != 0 {
		t.Fatalf("control = %#x; parity bits set for 8N1", cr)
	}
	if l.Instance() != USART1 {
		t.Fatalf("instance = %v; want USART1", l.Instance())
	}
}

func TestOpen_EnableResetRemapOrder(t *testing.T) {
	_, sim := openTestLine(t)

	en := sim.Log.IndexOf("rcc.enable")
	rst := sim.Log.IndexOf("rcc.reset")
	rm := sim.Log.IndexOf("afio.remap")
	brr := sim.Log.IndexOf("usart.brr.write")
	if !(en < rst && rst < rm && rm < brr) {
		t.Fatalf("setup order wrong: %v", sim.Log.Entries())
	}
}

func TestOpen_InvalidPins(t *testing.T) {
	sim := NewSim(USART1, testClock)
	// PA2/PA3 belong to USART2.
	_, err := Open(sim, Pins{TX: PA2, RX: PA3}, DefaultConfig())
	if err != ErrInvalidPins {
		t.Fatalf("err = %v; want ErrInvalidPins", err)
	}
	if sim.Enabled || len(sim.Log.Entries()) != 0 {
		t.Fatalf("hardware touched on rejected pins: %v", sim.Log.Entries())
	}
}

func TestOpen_ParityConfig(t *testing.T) {
	sim := NewSim(USART1, testClock)
	_, err := Open(sim, Pins{TX: PA9, RX: PA10}, DefaultConfig().WithParity(ParityOdd))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cr := sim.U.ControlBits()
	for _, bit := range []Control{CtrlWordLong, CtrlParityEnable, CtrlParityOdd} {
		if cr&bit == 0 {
			t.Fatalf("control = %#x; bit %#x not set for odd parity", cr, bit)
		}
	}
}

func TestReadByte_WouldBlock(t *testing.T) {
	l, sim := openTestLine(t)

	sim.Log.Reset()
	for i := 0; i < 3; i++ {
		if _, err := l.ReadByte(); err != ErrWouldBlock {
			t.Fatalf("poll %d: err = %v; want ErrWouldBlock", i, err)
		}
	}
	// An empty poll must not touch the data register: reading it could
	// de-latch state or consume a byte arriving between polls.
	if n := sim.Log.Count("usart.dr.read"); n != 0 {
		t.Fatalf("data register read %d times on empty polls", n)
	}
}

func TestReadByte_DeliversByte(t *testing.T) {
	l, sim := openTestLine(t)

	sim.U.InjectByte('G')
	b, err := l.ReadByte()
	if err != nil || b != 'G' {
		t.Fatalf("got %q, %v; want 'G', nil", b, err)
	}
	// Consumed: next poll blocks again.
	if _, err := l.ReadByte(); err != ErrWouldBlock {
		t.Fatalf("second poll: err = %v; want ErrWouldBlock", err)
	}
}

func TestReadByte_ErrorPriority(t *testing.T) {
	cases := []struct {
		faults Status
		want   error
	}{
		{StatusParityErr, ErrParity},
		{StatusFramingErr, ErrFraming},
		{StatusNoiseErr, ErrNoise},
		{StatusOverrunErr, ErrOverrun},
		{StatusParityErr | StatusOverrunErr, ErrParity},
		{StatusFramingErr | StatusNoiseErr | StatusOverrunErr, ErrFraming},
		{StatusNoiseErr | StatusOverrunErr, ErrNoise},
	}
	for _, c := range cases {
		l, sim := openTestLine(t)
		sim.U.InjectFault(c.faults)
		if _, err := l.ReadByte(); !errors.Is(err, c.want) {
			t.Fatalf("faults %#x: err = %v; want %v", c.faults, err, c.want)
		}
	}
}

func TestReadByte_FaultClearSequence(t *testing.T) {
	l, sim := openTestLine(t)

	sim.U.InjectFault(StatusFramingErr)
	sim.Log.Reset()
	if _, err := l.ReadByte(); err != ErrFraming {
		t.Fatalf("err = %v; want ErrFraming", err)
	}

	// The clear sequence is status read then data read, both mandatory.
	got := sim.Log.Entries()
	want := []string{"usart.sr.read", "usart.sr.read", "usart.dr.read"}
	if len(got) != len(want) {
		t.Fatalf("log = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("log[%d] = %q; want %q", i, got[i], want[i])
		}
	}

	// De-latched: the error is reported once, then the line is clean.
	if _, err := l.ReadByte(); err != ErrWouldBlock {
		t.Fatalf("after clear: err = %v; want ErrWouldBlock", err)
	}
}

func TestReadByte_OverrunOnUnconsumedByte(t *testing.T) {
	l, sim := openTestLine(t)

	sim.U.InjectByte('a')
	sim.U.InjectByte('b') // lost, latches overrun
	if _, err := l.ReadByte(); err != ErrOverrun {
		t.Fatalf("err = %v; want ErrOverrun", err)
	}
}

func TestWriteByte_HoldingRegister(t *testing.T) {
	l, sim := openTestLine(t)

	if err := l.WriteByte('x'); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Holding register now full.
	if err := l.WriteByte('y'); err != ErrWouldBlock {
		t.Fatalf("second write: err = %v; want ErrWouldBlock", err)
	}

	sim.U.FinishByte()
	if err := l.WriteByte('y'); err != nil {
		t.Fatalf("write after drain: %v", err)
	}
	if string(sim.U.TxSink) != "xy" {
		t.Fatalf("sent %q; want %q", sim.U.TxSink, "xy")
	}
}

func TestFlush_WaitsForShiftRegister(t *testing.T) {
	l, sim := openTestLine(t)

	// Idle line flushes immediately.
	if err := l.Flush(); err != nil {
		t.Fatalf("idle flush: %v", err)
	}

	if err := l.WriteByte('x'); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Flush(); err != ErrWouldBlock {
		t.Fatalf("flush with byte in flight: err = %v; want ErrWouldBlock", err)
	}

	// Holding register empty is not enough; the shifter must finish too.
	sim.U.FinishByte()
	if err := l.Flush(); err != ErrWouldBlock {
		t.Fatalf("flush with shifter busy: err = %v; want ErrWouldBlock", err)
	}

	// Writing is gated on the holding register alone, never on flush state.
	if err := l.WriteByte('y'); err != nil {
		t.Fatalf("write while shifter busy: %v", err)
	}

	sim.U.Drain()
	if err := l.Flush(); err != nil {
		t.Fatalf("flush after drain: %v", err)
	}
}

func TestListen_Events(t *testing.T) {
	l, sim := openTestLine(t)

	cases := []struct {
		e   Event
		bit Control
	}{
		{EventRxReady, CtrlRxReadyIRQ},
		{EventTxEmpty, CtrlTxEmptyIRQ},
		{EventIdle, CtrlIdleIRQ},
	}
	for _, c := range cases {
		l.Listen(c.e)
		if sim.U.ControlBits()&c.bit == 0 {
			t.Fatalf("event %d: bit %#x not set", c.e, c.bit)
		}
		l.Unlisten(c.e)
		if sim.U.ControlBits()&c.bit != 0 {
			t.Fatalf("event %d: bit %#x still set", c.e, c.bit)
		}
	}
}
