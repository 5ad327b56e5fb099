package gateway

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/ibramn/pump-protocol/dart"
	"github.com/ibramn/pump-protocol/eventbus"
	"github.com/ibramn/pump-protocol/serial"
	"github.com/ibramn/pump-protocol/track"
)

// CommandResult answers send_command: the assigned id and the exact bytes
// written to the bus.
type CommandResult struct {
	CommandID string
	Frame     []byte
}

// FrameHex renders the built frame as the "hex" field of the send_command
// response.
func (r CommandResult) FrameHex() string { return hex.EncodeToString(r.Frame) }

// StatusView answers get_status.
type StatusView struct {
	Connected bool
	Config    ConfigView
}

type commandRequest struct {
	cmd     dart.Command
	addr    byte
	control *byte
	reply   chan commandReply
}

type commandReply struct {
	result CommandResult
	err    error
}

type statusRequest struct {
	reply chan StatusView
}

type reconfigRequest struct {
	cfg   Config
	reply chan reconfigReply
}

type reconfigReply struct {
	cfg ConfigView
	err error
}

type listRequest struct {
	reply chan []track.PumpState
}

// SendCommand validates and encodes cmd, picks its control byte, builds the
// frame and writes it to the bus, then returns the same id and bytes the
// supervisor sees in its response. Encode-side failures never reach the
// transport: no partial frame is ever emitted.
func (e *Engine) SendCommand(ctx context.Context, cmd dart.Command, addr byte, control *byte) (CommandResult, error) {
	reply := make(chan commandReply, 1)
	req := commandRequest{cmd: cmd, addr: addr, control: control, reply: reply}
	select {
	case e.commands <- req:
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

// handleSendCommand runs inside Run's loop: it is the only place that
// calls transport.WriteFrame, so two writes never overlap, and bytes the
// reader goroutine receives during a write and its 50ms quiet-time are not
// ingested until the write has returned.
func (e *Engine) handleSendCommand(cmd dart.Command, addr byte, control *byte) commandReply {
	if !dart.ValidAddress(addr) {
		return commandReply{err: dart.ErrInvalidAddress}
	}

	tx, err := cmd.Encode()
	if err != nil {
		return commandReply{err: err}
	}

	ctrl := dart.DefaultControl(cmd)
	if control != nil {
		ctrl = *control
	}

	frame, err := dart.BuildFrame(addr, ctrl, []dart.Transaction{tx})
	if err != nil {
		return commandReply{err: err}
	}

	id := xid.New().String()
	now := time.Now()
	e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogSent, Message: id, Hex: hex.EncodeToString(frame)})

	if err := e.transport.WriteFrame(frame); err != nil {
		e.metrics.transportError()
		e.connected = false
		e.bus.PublishConnection(eventbus.ConnectionEvent{Connected: false, Err: err})
		return commandReply{err: transportErrorf("write", err)}
	}
	e.metrics.commandSent()

	return commandReply{result: CommandResult{CommandID: id, Frame: frame}}
}

// UpdateConfig closes the transport if open, swaps in cfg, and reopens it.
func (e *Engine) UpdateConfig(ctx context.Context, cfg Config) (ConfigView, error) {
	reply := make(chan reconfigReply, 1)
	select {
	case e.reconfig <- reconfigRequest{cfg: cfg, reply: reply}:
	case <-ctx.Done():
		return ConfigView{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.cfg, r.err
	case <-ctx.Done():
		return ConfigView{}, ctx.Err()
	}
}

func (e *Engine) handleReconfig(cfg Config) reconfigReply {
	if !dart.ValidAddress(cfg.PumpAddress) {
		return reconfigReply{err: fmt.Errorf("%w: pump address 0x%02X", dart.ErrInvalidAddress, cfg.PumpAddress)}
	}

	wasOpen := e.transport.IsOpen()
	if wasOpen {
		if err := e.transport.Close(); err != nil {
			return reconfigReply{err: transportErrorf("close", err)}
		}
	}

	if cfg.PumpAddress != e.cfg.PumpAddress {
		e.registry.Forget(e.cfg.PumpAddress)
	}

	e.cfg = cfg
	// Only the engine's own serial transport is rebuilt for the new device
	// and baud; one supplied through WithTransport is kept and reopened.
	if _, ok := e.transport.(*serial.Transport); ok {
		e.transport = newTransport(cfg)
	}

	if wasOpen {
		if err := e.transport.Open(); err != nil {
			e.metrics.transportError()
			e.connected = false
			return reconfigReply{err: transportErrorf("open", err)}
		}
		e.connected = true
	}

	return reconfigReply{cfg: e.cfg.view()}
}
