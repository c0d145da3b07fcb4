package usartx

import "testing"

// openRxDMA opens a line, splits it and promotes the receive half with a
// fresh simulated channel.
func openRxDMA(t *testing.T) (*RxDMA, *SimPeripheral, *SimChannel) {
	t.Helper()
	l, sim := openTestLine(t)
	_, rx := l.Split()
	ch := sim.NewChannel()
	return rx.WithDMA(ch), sim, ch
}

func openTxDMA(t *testing.T) (*TxDMA, *SimPeripheral, *SimChannel) {
	t.Helper()
	l, sim := openTestLine(t)
	tx, _ := l.Split()
	ch := sim.NewChannel()
	return tx.WithDMA(ch), sim, ch
}

func TestWithDMA_ArmsRequestLine(t *testing.T) {
	l, sim := openTestLine(t)
	tx, rx := l.Split()

	rx.WithDMA(sim.NewChannel())
	if sim.U.ControlBits()&CtrlDMARx == 0 {
		t.Fatal("rx DMA request not armed")
	}
	tx.WithDMA(sim.NewChannel())
	if sim.U.ControlBits()&CtrlDMATx == 0 {
		t.Fatal("tx DMA request not armed")
	}
}

func TestWithDMA_DoublePromotePanics(t *testing.T) {
	l, sim := openTestLine(t)
	_, rx := l.Split()
	rx.WithDMA(sim.NewChannel())
	mustPanic(t, "second WithDMA", func() { rx.WithDMA(sim.NewChannel()) })
}

func TestRxDMA_Read(t *testing.T) {
	d, sim, ch := openRxDMA(t)

	buf := make([]byte, 4)
	tr := d.Read(buf)

	// The channel must target the fixed data register address, fixed on the
	// peripheral side and incrementing through memory.
	if ch.PeriphAddr != sim.U.DataAddr() || ch.PeriphInc {
		t.Fatalf("peripheral side = %#x inc=%t; want %#x inc=false",
			ch.PeriphAddr, ch.PeriphInc, sim.U.DataAddr())
	}
	if !ch.MemInc {
		t.Fatal("memory side not incrementing")
	}
	if ch.Length != 4 {
		t.Fatalf("length = %d; want 4", ch.Length)
	}
	if ch.Cfg.Direction != PeriphToMem || ch.Cfg.Circular {
		t.Fatalf("config = %+v; want one-shot peripheral-to-memory", ch.Cfg)
	}
	if !ch.Started {
		t.Fatal("channel not started")
	}

	if tr.Done() {
		t.Fatal("Done before any data moved")
	}
	ch.Feed([]byte("wxyz"))
	ch.Complete()
	if !tr.Done() {
		t.Fatal("Done false after completion")
	}

	got := tr.Wait()
	if string(got) != "wxyz" {
		t.Fatalf("buffer = %q; want %q", got, "wxyz")
	}
	if ch.Started {
		t.Fatal("channel still running after Wait")
	}
	if ch.Flags() != 0 {
		t.Fatalf("flags = %#x; want cleared", ch.Flags())
	}
}

func TestRxDMA_SecondReadAfterWait(t *testing.T) {
	d, _, ch := openRxDMA(t)

	tr := d.Read(make([]byte, 2))
	ch.Feed([]byte("ab"))
	ch.Complete()
	tr.Wait()

	// The handle is free again; the request line is still armed.
	tr = d.Read(make([]byte, 2))
	ch.Feed([]byte("cd"))
	ch.Complete()
	if got := tr.Wait(); string(got) != "cd" {
		t.Fatalf("second transfer = %q; want %q", got, "cd")
	}
}

func TestRxDMA_BusyHandlePanics(t *testing.T) {
	d, _, _ := openRxDMA(t)
	d.Read(make([]byte, 2))
	mustPanic(t, "Read on busy handle", func() { d.Read(make([]byte, 2)) })
}

func TestRxDMA_EmptyBufferPanics(t *testing.T) {
	d, _, _ := openRxDMA(t)
	mustPanic(t, "empty buffer", func() { d.Read(nil) })
}

func TestTransfer_DoubleFinishPanics(t *testing.T) {
	d, _, ch := openTxDMA(t)
	tr := d.Write([]byte("a"))
	ch.Complete()
	tr.Wait()
	mustPanic(t, "Stop after Wait", func() { tr.Stop() })
}

func TestTransfer_StopCancels(t *testing.T) {
	d, _, ch := openRxDMA(t)
	buf := make([]byte, 8)
	tr := d.Read(buf)

	got := tr.Stop()
	if &got[0] != &buf[0] {
		t.Fatal("Stop returned a different buffer")
	}
	if ch.Started {
		t.Fatal("channel still running after Stop")
	}
	// Handle is reusable after a cancelled transfer.
	d.Read(make([]byte, 2))
}

func TestTransfer_ReleaseOrdering(t *testing.T) {
	d, sim, ch := openRxDMA(t)
	tr := d.Read(make([]byte, 4))
	ch.Feed([]byte("1234"))
	ch.Complete()

	sim.Log.Reset()
	rx, gotCh, _ := tr.Release()
	if rx == nil || gotCh != Channel(ch) {
		t.Fatal("Release did not return the promoted parts")
	}

	// The channel must halt before the peripheral request line is disarmed;
	// the other order leaves a window where the engine reacts to a request
	// with no channel behind it.
	stop := sim.Log.IndexOf("dma.stop")
	disarm := sim.Log.IndexOf("usart.cr.modify")
	if stop == -1 || disarm == -1 || stop > disarm {
		t.Fatalf("release order wrong: %v", sim.Log.Entries())
	}
	if sim.U.ControlBits()&CtrlDMARx != 0 {
		t.Fatal("rx DMA request still armed after Release")
	}

	// Ownership came back whole: the handle can be promoted again and the
	// request line re-arms.
	d2 := rx.WithDMA(gotCh)
	ch.Feed([]byte("56"))
	tr = d2.Read(make([]byte, 2))
	ch.Complete()
	if got := tr.Wait(); string(got) != "56" {
		t.Fatalf("transfer after re-promotion = %q; want %q", got, "56")
	}
}

func TestTxTransfer_ReleaseRecoversHandle(t *testing.T) {
	d, sim, ch := openTxDMA(t)
	tr := d.Write([]byte("x"))
	ch.Complete()

	tx, gotCh, _ := tr.Release()
	if sim.U.ControlBits()&CtrlDMATx != 0 {
		t.Fatal("tx DMA request still armed after Release")
	}

	d2 := tx.WithDMA(gotCh)
	if sim.U.ControlBits()&CtrlDMATx == 0 {
		t.Fatal("tx DMA request not re-armed")
	}
	tr = d2.Write([]byte("y"))
	ch.Complete()
	tr.Wait()
	if string(ch.Sink) != "xy" {
		t.Fatalf("sent %q; want %q", ch.Sink, "xy")
	}
}

func TestRxDMA_ReleaseOrdering(t *testing.T) {
	d, sim, _ := openRxDMA(t)

	sim.Log.Reset()
	d.Release()
	stop := sim.Log.IndexOf("dma.stop")
	disarm := sim.Log.IndexOf("usart.cr.modify")
	if stop == -1 || disarm == -1 || stop > disarm {
		t.Fatalf("release order wrong: %v", sim.Log.Entries())
	}
}

func TestTxDMA_Write(t *testing.T) {
	d, sim, ch := openTxDMA(t)

	tr := d.Write([]byte("ping"))
	if ch.Cfg.Direction != MemToPeriph {
		t.Fatalf("direction = %d; want MemToPeriph", ch.Cfg.Direction)
	}
	if ch.PeriphAddr != sim.U.DataAddr() {
		t.Fatalf("peripheral address = %#x; want data register", ch.PeriphAddr)
	}

	ch.Complete()
	tr.Wait()
	if string(ch.Sink) != "ping" {
		t.Fatalf("sent %q; want %q", ch.Sink, "ping")
	}
}

func TestCircRead_RejectsOddBuffers(t *testing.T) {
	d, _, _ := openRxDMA(t)
	if _, err := d.CircRead(make([]byte, 5)); err != ErrCircBufferSize {
		t.Fatalf("odd length: err = %v; want ErrCircBufferSize", err)
	}
	if _, err := d.CircRead(nil); err != ErrCircBufferSize {
		t.Fatalf("nil buffer: err = %v; want ErrCircBufferSize", err)
	}
}

func TestCircRead_HalfHandoff(t *testing.T) {
	d, _, ch := openRxDMA(t)

	cb, err := d.CircRead(make([]byte, 8))
	if err != nil {
		t.Fatalf("CircRead: %v", err)
	}
	if !ch.Cfg.Circular {
		t.Fatal("channel not in circular mode")
	}
	if cb.HalfLen() != 4 {
		t.Fatalf("half length = %d; want 4", cb.HalfLen())
	}

	// Nothing moved yet.
	if _, err := cb.ReadableHalf(); err != ErrWouldBlock {
		t.Fatalf("idle: err = %v; want ErrWouldBlock", err)
	}

	ch.Feed([]byte("abcdefgh"))

	ch.CompleteHalf()
	half, err := cb.ReadableHalf()
	if err != nil || half != FirstHalf {
		t.Fatalf("after half: %v, %v; want first, nil", half, err)
	}

	p := make([]byte, 4)
	n, err := cb.Read(p)
	if err != nil || n != 4 || string(p) != "abcd" {
		t.Fatalf("first half = %q (n=%d, err=%v); want %q", p[:n], n, err, "abcd")
	}

	// Engine still filling the second half.
	if _, err := cb.Read(p); err != ErrWouldBlock {
		t.Fatalf("between halves: err = %v; want ErrWouldBlock", err)
	}

	ch.Complete()
	n, err = cb.Read(p)
	if err != nil || n != 4 || string(p) != "efgh" {
		t.Fatalf("second half = %q (n=%d, err=%v); want %q", p[:n], n, err, "efgh")
	}
}

func TestCircRead_WrapsForever(t *testing.T) {
	d, _, ch := openRxDMA(t)
	cb, err := d.CircRead(make([]byte, 4))
	if err != nil {
		t.Fatalf("CircRead: %v", err)
	}
	ch.Feed([]byte("aabbccdd"))

	p := make([]byte, 2)
	want := []string{"aa", "bb", "cc", "dd"}
	for lap := 0; lap < len(want); lap++ {
		if lap%2 == 0 {
			ch.CompleteHalf()
		} else {
			ch.Complete()
		}
		n, err := cb.Read(p)
		if err != nil || n != 2 || string(p) != want[lap] {
			t.Fatalf("lap %d = %q (n=%d, err=%v); want %q", lap, p[:n], n, err, want[lap])
		}
	}
}

func TestCircRead_OverrunWhenLapped(t *testing.T) {
	d, _, ch := openRxDMA(t)
	cb, err := d.CircRead(make([]byte, 4))
	if err != nil {
		t.Fatalf("CircRead: %v", err)
	}
	ch.Feed([]byte("abcd"))

	// Both halves complete before the caller reads anything: the engine is
	// back in the first half, so its data is no longer stable.
	ch.CompleteHalf()
	ch.Complete()
	if _, err := cb.ReadableHalf(); err != ErrCircOverrun {
		t.Fatalf("err = %v; want ErrCircOverrun", err)
	}
	if _, err := cb.Read(make([]byte, 2)); err != ErrCircOverrun {
		t.Fatalf("Read: err = %v; want ErrCircOverrun", err)
	}
}

func TestCircRead_Release(t *testing.T) {
	d, sim, ch := openRxDMA(t)
	cb, err := d.CircRead(make([]byte, 4))
	if err != nil {
		t.Fatalf("CircRead: %v", err)
	}

	sim.Log.Reset()
	rx, gotCh := cb.Release()
	if rx == nil || gotCh != Channel(ch) {
		t.Fatal("Release did not return the promoted parts")
	}
	stop := sim.Log.IndexOf("dma.stop")
	disarm := sim.Log.IndexOf("usart.cr.modify")
	if stop == -1 || disarm == -1 || stop > disarm {
		t.Fatalf("release order wrong: %v", sim.Log.Entries())
	}

	mustPanic(t, "Read after Release", func() { cb.Read(make([]byte, 2)) })

	// The freed handle can be promoted and used again.
	d2 := rx.WithDMA(gotCh)
	d2.Read(make([]byte, 2))
}
