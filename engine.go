// Package gateway is the DART protocol engine: it owns the ingress
// reassembly buffer, the per-pump state projection, the event fan-out, and
// the single RS-485 transport, and exposes the supervisor's request/
// response surface (send_command, get_status, update_config).
//
// An Engine's state (the ingress buffer and every PumpState) is touched by
// exactly one goroutine, Engine.Run's loop. Everything else (SendCommand,
// GetStatus, UpdateConfig) submits a request over a channel and waits for
// the loop to answer.
package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ibramn/pump-protocol/dart"
	"github.com/ibramn/pump-protocol/eventbus"
	"github.com/ibramn/pump-protocol/serial"
	"github.com/ibramn/pump-protocol/track"
)

// Transport is what Engine needs from the serial link; *serial.Transport
// satisfies it. Tests and alternative front-ends can supply their own.
type Transport interface {
	Open() error
	Close() error
	IsOpen() bool
	WriteFrame([]byte) error
	Read([]byte) (int, error)
}

// Engine is the gateway's singleton: one instance per RS-485 bus. The zero
// value is not usable; construct with New.
type Engine struct {
	cfg       Config
	transport Transport
	registry  *track.Registry
	bus       *eventbus.Bus
	metrics   *metrics
	log       *logrus.Entry

	buf []byte // ingress reassembly buffer, owned solely by Run()

	connected bool

	commands chan commandRequest
	statuses chan statusRequest
	reconfig chan reconfigRequest
	listReqs chan listRequest
	rawIn    chan []byte
	done     chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMetrics registers the engine's Prometheus counters against reg.
// Without this option the engine keeps no counters at all.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = newMetrics(reg) }
}

// WithLogger overrides the logrus entry the engine logs through.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// WithTransport overrides the serial transport, e.g. with a fake for
// testing. Without this option New wires up the real RS-485 device.
func WithTransport(t Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// New constructs an Engine bound to cfg. Call Open then Run to bring it up.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: track.NewRegistry(),
		bus:      eventbus.New(),
		log:      logrus.WithField("component", "dartgw"),
		commands: make(chan commandRequest),
		statuses: make(chan statusRequest),
		reconfig: make(chan reconfigRequest),
		listReqs: make(chan listRequest),
		rawIn:    make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	e.transport = newTransport(cfg)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newTransport(cfg Config) Transport {
	return serial.New(serial.Config{Device: cfg.Device, Baud: cfg.Baud})
}

// Events returns the event bus subscribers attach to for pump_message,
// log and connection_status push.
func (e *Engine) Events() *eventbus.Bus { return e.bus }

// Wait blocks until Run's loop has exited.
func (e *Engine) Wait() { <-e.done }

// Open attaches the serial transport. Call it before Run starts: Open and
// Close touch connection state directly rather than through Run's loop, so
// calling either concurrently with a running Run is a data race. Reconfigure
// a live engine with UpdateConfig instead, which does go through the loop.
func (e *Engine) Open() error {
	if err := e.transport.Open(); err != nil {
		e.metrics.transportError()
		return transportErrorf("open", err)
	}
	e.connected = true
	e.bus.PublishConnection(eventbus.ConnectionEvent{Connected: true})
	return nil
}

// Close detaches the serial transport and flushes the ingress buffer.
func (e *Engine) Close() error {
	err := e.transport.Close()
	e.connected = false
	e.buf = nil
	e.bus.PublishConnection(eventbus.ConnectionEvent{Connected: false, Err: err})
	if err != nil {
		return transportErrorf("close", err)
	}
	return nil
}

// Run drives the single cooperative event loop until ctx is cancelled. It
// is the engine's only writer of buf, registry state and connection state;
// SendCommand/GetStatus/UpdateConfig all round-trip through this loop.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	readErrs := make(chan error, 1)
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go e.readLoop(readCtx, readErrs)

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErrs:
			e.metrics.transportError()
			e.connected = false
			e.buf = nil
			e.bus.PublishConnection(eventbus.ConnectionEvent{Connected: false, Err: err})
			e.log.WithError(err).Warn("transport read failed, ingress buffer drained")

		case chunk := <-e.rawIn:
			e.ingest(chunk)

		case req := <-e.commands:
			req.reply <- e.handleSendCommand(req.cmd, req.addr, req.control)

		case req := <-e.statuses:
			req.reply <- StatusView{Connected: e.connected, Config: e.cfg.view()}

		case req := <-e.reconfig:
			req.reply <- e.handleReconfig(req.cfg)

		case req := <-e.listReqs:
			req.reply <- e.registry.List()
		}
	}
}

// readLoop performs blocking reads off the transport and forwards whatever
// bytes arrive to Run() via rawIn. It is the only goroutine besides Run()
// that touches the transport, and only for Read: writes happen inside
// Run() itself, so a Read may be in progress during a write, but its bytes
// are ingested only after that write returns.
func (e *Engine) readLoop(ctx context.Context, errs chan<- error) {
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := e.transport.Read(buf)
		if err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
			return
		}
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		select {
		case e.rawIn <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

// ingest folds chunk into the reassembly buffer, extracts every complete
// frame, decodes each, and runs the mandatory buffer cleanup afterwards.
func (e *Engine) ingest(chunk []byte) {
	e.buf = append(e.buf, chunk...)

	frames, remainder := dart.ExtractFrames(e.buf)
	e.buf = remainder

	now := time.Now()
	for _, frame := range frames {
		e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogRaw, Hex: hex.EncodeToString(frame)})
		e.decodeFrame(frame, now)
	}

	e.buf = dart.Cleanup(e.buf)
}

// decodeFrame runs the dual decode path: the fast pattern matcher first,
// falling back to structural parse + per-transaction Decode. Heartbeat
// wrapper blocks are filtered before either path runs.
func (e *Engine) decodeFrame(frame []byte, now time.Time) {
	if dart.IsHeartbeat(frame) {
		return
	}

	if rec, ok := dart.MatchStatus(frame); ok {
		e.emit(frame[0], rec, frame, now)
		e.metrics.decodedFrame()
		return
	}

	parsed, err := dart.ParseFrame(frame)
	if err != nil {
		e.metrics.droppedFrame("malformed")
		e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogError, Message: err.Error(), Hex: hex.EncodeToString(frame)})
		return
	}

	if len(parsed.Transactions) == 0 {
		e.metrics.droppedFrame("unrecognized")
		e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogUnknown, Message: fmt.Sprintf("%s: addr=0x%02X", ErrUnrecognizedFrame, parsed.Addr), Hex: hex.EncodeToString(frame)})
		return
	}

	decodedAny := false
	for _, t := range parsed.Transactions {
		rec, err := dart.Decode(t)
		if err != nil {
			if errors.Is(err, dart.ErrUnknownTransaction) {
				e.metrics.unknownTransaction()
			}
			e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogUnknown, Message: err.Error()})
			continue
		}
		decodedAny = true
		e.emit(parsed.Addr, rec, frame, now)
	}
	if decodedAny {
		e.metrics.decodedFrame()
	} else {
		e.metrics.droppedFrame("unrecognized")
		e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogUnknown, Message: fmt.Sprintf("%s: addr=0x%02X", ErrUnrecognizedFrame, parsed.Addr), Hex: hex.EncodeToString(frame)})
	}
}

// emit projects rec into the per-pump state and fans it out on the event
// bus, sharing one timestamp with every other transaction from frame.
func (e *Engine) emit(addr byte, rec dart.Record, frame []byte, now time.Time) {
	e.registry.Apply(addr, rec, now)
	e.bus.PublishPumpMessage(eventbus.PumpMessage{
		Address:   addr,
		Timestamp: now.UnixNano(),
		Type:      recordKindName(rec.Kind),
		Data:      rec,
		RawHex:    hex.EncodeToString(frame),
	})
	e.bus.PublishLog(eventbus.LogEvent{Timestamp: now.UnixNano(), Type: eventbus.LogDecoded, Message: recordKindName(rec.Kind), Hex: hex.EncodeToString(frame)})
}

func recordKindName(k dart.RecordKind) string {
	switch k {
	case dart.RecStatus:
		return "DC1"
	case dart.RecVolumeAmount:
		return "DC2"
	case dart.RecNozzlePrice:
		return "DC3"
	case dart.RecAlarm:
		return "DC5"
	case dart.RecPumpParams:
		return "DC7"
	case dart.RecIdentity:
		return "DC9"
	case dart.RecSuspendResume:
		return "DC14/DC15"
	case dart.RecCounters:
		return "DC101"
	case dart.RecStandAloneMode:
		return "DC102"
	case dart.RecUnitPriceTable:
		return "DC103"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// GetStatus returns the supervisor's connected/config view.
func (e *Engine) GetStatus(ctx context.Context) (StatusView, error) {
	reply := make(chan StatusView, 1)
	select {
	case e.statuses <- statusRequest{reply: reply}:
	case <-ctx.Done():
		return StatusView{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return StatusView{}, ctx.Err()
	}
}

// ListPumps returns a snapshot of every pump this engine has seen a frame
// from, ordered by address, supplementing get_status's single-pump view
// with a bus-wide one.
func (e *Engine) ListPumps(ctx context.Context) ([]track.PumpState, error) {
	reply := make(chan []track.PumpState, 1)
	select {
	case e.listReqs <- listRequest{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
