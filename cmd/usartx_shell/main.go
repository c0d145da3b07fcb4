// cmd/usartx_shell/main.go
// Interactive host shell around a simulated USART line. Useful for poking
// the engine by hand: inject bytes and faults, poll, watch the register
// access log.
//
//	$ go run ./cmd/usartx_shell
//	usartx> open 1 115200
//	usartx> inject 68 69
//	usartx> read
//	'h' (0x68)
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/jangala-dev/tinygo-usartx/usartx"
)

type session struct {
	sim *usartx.SimPeripheral
	tx  *usartx.Tx
	rx  *usartx.Rx
}

var defaultPins = map[usartx.Instance]usartx.Pins{
	usartx.USART1: {TX: usartx.PA9, RX: usartx.PA10},
	usartx.USART2: {TX: usartx.PA2, RX: usartx.PA3},
	usartx.USART3: {TX: usartx.PB10, RX: usartx.PB11},
}

func (s *session) open(args []string) error {
	inst := usartx.USART1
	cfg := usartx.DefaultConfig()
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > 3 {
			return fmt.Errorf("bad instance %q", args[0])
		}
		inst = usartx.Instance(n)
	}
	if len(args) > 1 {
		baud, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad baud %q", args[1])
		}
		cfg = cfg.WithBaudRate(uint32(baud))
	}

	s.sim = usartx.NewSim(inst, 72_000_000)
	line, err := usartx.Open(s.sim, defaultPins[inst], cfg)
	if err != nil {
		return err
	}
	s.tx, s.rx = line.Split()
	fmt.Printf("opened %v, divisor %d\n", inst, s.sim.U.Divisor())
	return nil
}

func (s *session) ready() bool {
	if s.sim == nil {
		fmt.Println("no line open; use: open [1-3] [baud]")
		return false
	}
	return true
}

func (s *session) run(cmd string, args []string) {
	switch cmd {
	case "open":
		if err := s.open(args); err != nil {
			fmt.Println("open:", err)
		}
	case "inject":
		if !s.ready() {
			return
		}
		for _, a := range args {
			v, err := strconv.ParseUint(a, 0, 8)
			if err != nil {
				fmt.Printf("bad byte %q\n", a)
				return
			}
			s.sim.U.InjectByte(byte(v))
		}
	case "fault":
		if !s.ready() || len(args) == 0 {
			return
		}
		faults := map[string]usartx.Status{
			"parity":  usartx.StatusParityErr,
			"framing": usartx.StatusFramingErr,
			"noise":   usartx.StatusNoiseErr,
			"overrun": usartx.StatusOverrunErr,
		}
		f, ok := faults[args[0]]
		if !ok {
			fmt.Printf("unknown fault %q\n", args[0])
			return
		}
		s.sim.U.InjectFault(f)
	case "read":
		if !s.ready() {
			return
		}
		b, err := s.rx.ReadByte()
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("%q (%#02x)\n", b, b)
	case "write":
		if !s.ready() {
			return
		}
		for _, a := range args {
			for _, b := range []byte(a) {
				if err := s.tx.WriteByte(b); err != nil {
					fmt.Println(err)
					return
				}
				s.sim.U.FinishByte()
			}
		}
	case "sent":
		if !s.ready() {
			return
		}
		fmt.Printf("%q\n", s.sim.U.TxSink)
	case "cr":
		if !s.ready() {
			return
		}
		fmt.Printf("control = %#x\n", s.sim.U.ControlBits())
	case "log":
		if !s.ready() {
			return
		}
		for _, e := range s.sim.Log.Entries() {
			fmt.Println(" ", e)
		}
		s.sim.Log.Reset()
	case "help":
		fmt.Print(helpText)
	default:
		fmt.Printf("unknown command %q; try help\n", cmd)
	}
}

const helpText = `commands:
  open [1-3] [baud]   open a simulated line (default USART1, 115200)
  inject B...         push received bytes (decimal or 0x-hex)
  fault KIND          latch a fault: parity framing noise overrun
  read                poll the receiver once
  write WORD...       send words through the transmitter
  sent                show everything the transmitter accepted
  cr                  show the control register state
  log                 show and clear the register access log
  quit
`

func main() {
	s := &session{}
	in := bufio.NewScanner(os.Stdin)
	fmt.Print("usartx> ")
	for in.Scan() {
		text := strings.TrimSpace(in.Text())
		if text == "quit" || text == "exit" {
			return
		}
		if text != "" {
			fields, err := shlex.Split(text)
			if err != nil {
				fmt.Println("parse:", err)
			} else if len(fields) > 0 {
				s.run(fields[0], fields[1:])
			}
		}
		fmt.Print("usartx> ")
	}
}
