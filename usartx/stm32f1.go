// usartx/stm32f1.go

//go:build stm32f103

// Hardware backend for the STM32F103: memory-mapped USART1..3 register
// blocks and DMA1 channels (RM0008). The abstract Control mask is scattered
// here over CR1/CR2/CR3; Status maps one-to-one onto SR.

package usartx

import (
	"device/stm32"
	"machine"
	"runtime/volatile"
	"unsafe"
)

// usartHW is the USART register block layout.
type usartHW struct {
	SR   volatile.Register32
	DR   volatile.Register32
	BRR  volatile.Register32
	CR1  volatile.Register32
	CR2  volatile.Register32
	CR3  volatile.Register32
	GTPR volatile.Register32
}

// CR1/CR2/CR3 bit positions.
const (
	hwCR1_UE     = 1 << 13
	hwCR1_M      = 1 << 12
	hwCR1_PCE    = 1 << 10
	hwCR1_PS     = 1 << 9
	hwCR1_TXEIE  = 1 << 7
	hwCR1_RXNEIE = 1 << 5
	hwCR1_IDLEIE = 1 << 4
	hwCR1_TE     = 1 << 3
	hwCR1_RE     = 1 << 2

	hwCR2_STOP_Pos = 12
	hwCR2_STOP_Msk = 0b11 << hwCR2_STOP_Pos

	hwCR3_DMAT = 1 << 7
	hwCR3_DMAR = 1 << 6
)

// cr1Bits projects the CR1-resident fields of a Control mask.
func cr1Bits(c Control) uint32 {
	var v uint32
	if c&CtrlEnable != 0 {
		v |= hwCR1_UE
	}
	if c&CtrlRxEnable != 0 {
		v |= hwCR1_RE
	}
	if c&CtrlTxEnable != 0 {
		v |= hwCR1_TE
	}
	if c&CtrlWordLong != 0 {
		v |= hwCR1_M
	}
	if c&CtrlParityEnable != 0 {
		v |= hwCR1_PCE
	}
	if c&CtrlParityOdd != 0 {
		v |= hwCR1_PS
	}
	if c&CtrlRxReadyIRQ != 0 {
		v |= hwCR1_RXNEIE
	}
	if c&CtrlTxEmptyIRQ != 0 {
		v |= hwCR1_TXEIE
	}
	if c&CtrlIdleIRQ != 0 {
		v |= hwCR1_IDLEIE
	}
	return v
}

// cr3Bits projects the CR3-resident fields of a Control mask.
func cr3Bits(c Control) uint32 {
	var v uint32
	if c&CtrlDMARx != 0 {
		v |= hwCR3_DMAR
	}
	if c&CtrlDMATx != 0 {
		v |= hwCR3_DMAT
	}
	return v
}

// hwRegs implements Regs over one memory-mapped block.
type hwRegs struct {
	u *usartHW
}

func (r hwRegs) Status() Status { return Status(r.u.SR.Get()) }

func (r hwRegs) ReadData() byte { return byte(r.u.DR.Get()) }

func (r hwRegs) WriteData(b byte) { r.u.DR.Set(uint32(b)) }

func (r hwRegs) Control() Control {
	var c Control
	cr1 := r.u.CR1.Get()
	if cr1&hwCR1_UE != 0 {
		c |= CtrlEnable
	}
	if cr1&hwCR1_RE != 0 {
		c |= CtrlRxEnable
	}
	if cr1&hwCR1_TE != 0 {
		c |= CtrlTxEnable
	}
	if cr1&hwCR1_M != 0 {
		c |= CtrlWordLong
	}
	if cr1&hwCR1_PCE != 0 {
		c |= CtrlParityEnable
	}
	if cr1&hwCR1_PS != 0 {
		c |= CtrlParityOdd
	}
	if cr1&hwCR1_RXNEIE != 0 {
		c |= CtrlRxReadyIRQ
	}
	if cr1&hwCR1_TXEIE != 0 {
		c |= CtrlTxEmptyIRQ
	}
	if cr1&hwCR1_IDLEIE != 0 {
		c |= CtrlIdleIRQ
	}
	cr2 := r.u.CR2.Get()
	c |= Control((cr2&hwCR2_STOP_Msk)>>hwCR2_STOP_Pos) << ctrlStopPos
	cr3 := r.u.CR3.Get()
	if cr3&hwCR3_DMAR != 0 {
		c |= CtrlDMARx
	}
	if cr3&hwCR3_DMAT != 0 {
		c |= CtrlDMATx
	}
	return c
}

func (r hwRegs) ModifyControl(set, clear Control) {
	if s, c := cr1Bits(set), cr1Bits(clear); s != 0 || c != 0 {
		r.u.CR1.Set(r.u.CR1.Get()&^c | s)
	}
	if clear&CtrlStopMask != 0 || set&CtrlStopMask != 0 {
		v := r.u.CR2.Get()
		if clear&CtrlStopMask != 0 {
			v &^= hwCR2_STOP_Msk
		}
		v |= uint32(set.StopField()) << hwCR2_STOP_Pos
		r.u.CR2.Set(v)
	}
	if s, c := cr3Bits(set), cr3Bits(clear); s != 0 || c != 0 {
		r.u.CR3.Set(r.u.CR3.Get()&^c | s)
	}
}

func (r hwRegs) SetBaudDivisor(div uint32) { r.u.BRR.Set(div) }

func (r hwRegs) DataAddr() uintptr { return uintptr(unsafe.Pointer(&r.u.DR)) }

// hwInstances maps each instance to its register block, reset-controller
// wiring and remap field. One generic implementation consumes this table;
// the three USARTs have no per-instance code paths.
var hwInstances = [...]struct {
	inst       Instance
	block      *usartHW
	apb2       bool   // clocked and reset on APB2, else APB1
	busMask    uint32 // RCC enable/reset bit
	remapShift uint8  // field position in AFIO_MAPR
	remapMask  uint32
}{
	{USART1, (*usartHW)(unsafe.Pointer(stm32.USART1)), true, 1 << 14, 2, 0b1},
	{USART2, (*usartHW)(unsafe.Pointer(stm32.USART2)), false, 1 << 17, 3, 0b1},
	{USART3, (*usartHW)(unsafe.Pointer(stm32.USART3)), false, 1 << 18, 4, 0b11},
}

const hwAFIOEN = 1 << 0

type hwPeripheral struct {
	entry int
}

// Hardware returns the Peripheral for a USART instance.
func Hardware(inst Instance) Peripheral {
	for i := range hwInstances {
		if hwInstances[i].inst == inst {
			return hwPeripheral{entry: i}
		}
	}
	panic("usartx: unknown instance")
}

func (p hwPeripheral) Instance() Instance { return hwInstances[p.entry].inst }

func (p hwPeripheral) Regs() Regs { return hwRegs{u: hwInstances[p.entry].block} }

func (p hwPeripheral) Enable() {
	e := &hwInstances[p.entry]
	if e.apb2 {
		stm32.RCC.APB2ENR.SetBits(e.busMask)
	} else {
		stm32.RCC.APB1ENR.SetBits(e.busMask)
	}
}

func (p hwPeripheral) Reset() {
	e := &hwInstances[p.entry]
	if e.apb2 {
		stm32.RCC.APB2RSTR.SetBits(e.busMask)
		stm32.RCC.APB2RSTR.ClearBits(e.busMask)
	} else {
		stm32.RCC.APB1RSTR.SetBits(e.busMask)
		stm32.RCC.APB1RSTR.ClearBits(e.busMask)
	}
}

func (p hwPeripheral) Remap(code uint8) {
	e := &hwInstances[p.entry]
	stm32.RCC.APB2ENR.SetBits(hwAFIOEN)
	v := stm32.AFIO.MAPR.Get()
	v &^= e.remapMask << e.remapShift
	v |= (uint32(code) & e.remapMask) << e.remapShift
	stm32.AFIO.MAPR.Set(v)
}

func (p hwPeripheral) ClockHz() uint32 {
	// USART1 sits on APB2 (full sysclk at the supported clock trees);
	// USART2/3 sit on APB1, limited to half.
	if hwInstances[p.entry].apb2 {
		return machine.CPUFrequency()
	}
	return machine.CPUFrequency() / 2
}

// DMA1 block layout: status, clear, then seven channels of five words each.
type dmaHW struct {
	ISR  volatile.Register32
	IFCR volatile.Register32
	CH   [7]dmaChannelHW
}

type dmaChannelHW struct {
	CCR   volatile.Register32
	CNDTR volatile.Register32
	CPAR  volatile.Register32
	CMAR  volatile.Register32
	_     volatile.Register32 // reserved
}

// CCR bit positions.
const (
	hwCCR_EN       = 1 << 0
	hwCCR_DIR      = 1 << 4 // 1: read from memory
	hwCCR_CIRC     = 1 << 5
	hwCCR_PINC     = 1 << 6
	hwCCR_MINC     = 1 << 7
	hwCCR_SIZE_Msk = 0b1111 << 8 // PSIZE and MSIZE, 00 = 8-bit
	hwCCR_PL_Pos   = 12
	hwCCR_PL_Msk   = 0b11 << hwCCR_PL_Pos
	hwCCR_MEM2MEM  = 1 << 14
)

const hwDMA1EN = 1 << 0

var dma1 = (*dmaHW)(unsafe.Pointer(stm32.DMA1))

type hwChannel struct {
	n uint8 // 1-based channel number
}

// DMA1Channel returns channel n (1..7) of the DMA1 controller, ungating its
// clock on first use.
func DMA1Channel(n uint8) Channel {
	if n < 1 || n > 7 {
		panic("usartx: invalid DMA channel")
	}
	stm32.RCC.AHBENR.SetBits(hwDMA1EN)
	return hwChannel{n: n}
}

func (c hwChannel) hw() *dmaChannelHW { return &dma1.CH[c.n-1] }

// Per-channel flag positions in ISR/IFCR: GIF, TCIF, HTIF, TEIF.
func (c hwChannel) flagShift() uint { return uint(4 * (c.n - 1)) }

func (c hwChannel) SetPeripheralAddress(addr uintptr, increment bool) {
	c.hw().CPAR.Set(uint32(addr))
	if increment {
		c.hw().CCR.SetBits(hwCCR_PINC)
	} else {
		c.hw().CCR.ClearBits(hwCCR_PINC)
	}
}

func (c hwChannel) SetMemoryAddress(addr uintptr, increment bool) {
	c.hw().CMAR.Set(uint32(addr))
	if increment {
		c.hw().CCR.SetBits(hwCCR_MINC)
	} else {
		c.hw().CCR.ClearBits(hwCCR_MINC)
	}
}

func (c hwChannel) SetTransferLength(n int) {
	c.hw().CNDTR.Set(uint32(n))
}

func (c hwChannel) Configure(cfg ChannelConfig) {
	v := c.hw().CCR.Get()
	v &^= hwCCR_DIR | hwCCR_CIRC | hwCCR_SIZE_Msk | hwCCR_PL_Msk | hwCCR_MEM2MEM
	if cfg.Direction == MemToPeriph {
		v |= hwCCR_DIR
	}
	if cfg.Circular {
		v |= hwCCR_CIRC
	}
	v |= uint32(cfg.Priority) << hwCCR_PL_Pos
	c.hw().CCR.Set(v)
}

func (c hwChannel) Start() {
	c.hw().CCR.SetBits(hwCCR_EN)
}

func (c hwChannel) Stop() {
	// Clear the channel's global flag, then drop EN; RM0008 defines EN=0 as
	// an immediate halt.
	dma1.IFCR.Set(1 << c.flagShift())
	c.hw().CCR.ClearBits(hwCCR_EN)
}

func (c hwChannel) Flags() ChannelFlags {
	isr := dma1.ISR.Get() >> c.flagShift()
	var f ChannelFlags
	if isr&0b010 != 0 {
		f |= FlagComplete
	}
	if isr&0b100 != 0 {
		f |= FlagHalfComplete
	}
	return f
}

func (c hwChannel) ClearFlags(f ChannelFlags) {
	var v uint32
	if f&FlagComplete != 0 {
		v |= 0b010
	}
	if f&FlagHalfComplete != 0 {
		v |= 0b100
	}
	dma1.IFCR.Set(v << c.flagShift())
}

func (c hwChannel) Remaining() int { return int(c.hw().CNDTR.Get()) }
