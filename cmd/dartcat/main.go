// Command dartcat is a small interactive tool for exercising a DART bus by
// hand: it opens the serial device, sends one CD1 command, and prints
// whatever comes back until interrupted. It exists for manual protocol
// testing the way cmd/iecat exists for a live IEC 104 connection.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ibramn/pump-protocol/dart"
	"github.com/ibramn/pump-protocol/serial"
)

var CmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	deviceFlag = flag.String("device", "/dev/ttyUSB0", "RS-485 serial device path")
	baudFlag   = flag.Int("baud", 9600, "Serial baud rate")
	addrFlag   = flag.Uint("address", 0x50, "Pump address")
	cmdFlag    = flag.Uint("command", uint(dart.CmdStatusRequest), "CD1 command byte to send")
)

func main() {
	flag.Parse()

	addr := byte(*addrFlag)
	if !dart.ValidAddress(addr) {
		CmdLog.Fatalf("address 0x%02X out of [0x%02X,0x%02X]", addr, dart.MinAddr, dart.MaxAddr)
	}

	port := serial.New(serial.Config{Device: *deviceFlag, Baud: *baudFlag})
	if err := port.Open(); err != nil {
		CmdLog.Fatal(err)
	}
	defer port.Close()

	cmd := dart.Command{Kind: dart.CD1, Cmd: byte(*cmdFlag)}
	tx, err := cmd.Encode()
	if err != nil {
		CmdLog.Fatal(err)
	}
	frame, err := dart.BuildFrame(addr, dart.DefaultControl(cmd), []dart.Transaction{tx})
	if err != nil {
		CmdLog.Fatal(err)
	}

	fmt.Printf("-> %s\n", hex.EncodeToString(frame))
	if err := port.WriteFrame(frame); err != nil {
		CmdLog.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)

	var buf []byte
	readBuf := make([]byte, 256)
	for {
		select {
		case <-sig:
			return
		default:
		}

		n, err := port.Read(readBuf)
		if err != nil {
			CmdLog.Fatal(err)
		}
		if n == 0 {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		buf = append(buf, readBuf[:n]...)

		frames, remainder := dart.ExtractFrames(buf)
		buf = dart.Cleanup(remainder)
		for _, f := range frames {
			printFrame(f)
		}
	}
}

func printFrame(frame []byte) {
	fmt.Printf("<- %s\n", hex.EncodeToString(frame))
	if dart.IsHeartbeat(frame) {
		fmt.Println("   (heartbeat)")
		return
	}
	if rec, ok := dart.MatchStatus(frame); ok {
		fmt.Printf("   status=%d\n", rec.Status)
		return
	}
	parsed, err := dart.ParseFrame(frame)
	if err != nil {
		fmt.Printf("   %v\n", err)
		return
	}
	for _, t := range parsed.Transactions {
		rec, err := dart.Decode(t)
		if err != nil {
			fmt.Printf("   trans %d: %v\n", t.Trans, err)
			continue
		}
		fmt.Printf("   %+v\n", rec)
	}
}
