// Package httpapi realizes the supervisor request/response surface and the
// subscriber event push surface on top of a running gateway.Engine:
// send_command, get_status and update_config as chi routes, and
// pump_message/log/connection_status fan-out over a websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	gateway "github.com/ibramn/pump-protocol"
	"github.com/ibramn/pump-protocol/dart"
)

var validate = validator.New()

// Server wires an Engine to the HTTP supervisor surface.
type Server struct {
	engine   *gateway.Engine
	log      *logrus.Entry
	router   chi.Router
	upgrader websocket.Upgrader
}

// New returns a ready-to-serve Server for engine.
func New(engine *gateway.Engine, log *logrus.Entry) *Server {
	s := &Server{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Post("/send_command", s.handleSendCommand)
	r.Get("/get_status", s.handleGetStatus)
	r.Post("/update_config", s.handleUpdateConfig)
	r.Get("/pumps", s.handleListPumps)
	r.Get("/events", s.handleEvents)

	return r
}

// sendCommandRequest mirrors the send_command request body.
type sendCommandRequest struct {
	Command struct {
		Type string         `json:"type" validate:"required"`
		Data map[string]any `json:"data"`
	} `json:"command" validate:"required"`
	PumpAddress string `json:"pump_address" validate:"required"`
	Control     *int   `json:"control,omitempty" validate:"omitempty,min=0,max=255"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	addr, err := gateway.ParseAddress(req.PumpAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cmd, err := commandFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var control *byte
	if req.Control != nil {
		c := byte(*req.Control)
		control = &c
	}

	result, err := s.engine.SendCommand(r.Context(), cmd, addr, control)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"command_id": result.CommandID,
		"frame": map[string]any{
			"hex":   result.FrameHex(),
			"bytes": result.Frame,
		},
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.GetStatus(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": status.Connected,
		"config":    status.Config,
	})
}

type updateConfigRequest struct {
	Port        string `json:"port" validate:"required"`
	Baud        int    `json:"baud" validate:"required,oneof=9600 19200 38400 57600 115200"`
	PumpAddress string `json:"pump_address" validate:"required"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	addr, err := gateway.ParseAddress(req.PumpAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg, err := s.engine.UpdateConfig(r.Context(), gateway.Config{
		Device:      req.Port,
		Baud:        req.Baud,
		PumpAddress: addr,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": cfg})
}

func (s *Server) handleListPumps(w http.ResponseWriter, r *http.Request) {
	pumps, err := s.engine.ListPumps(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pumps)
}

// handleEvents upgrades to a websocket and fans pump_message/log/
// connection_status out to the client as they're published, plus a
// best-effort ping/pong liveness exchange.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.engine.Events().Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardInbound(conn, cancel)

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.PumpMessages:
			if !ok {
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": "pump_message", "data": msg}); err != nil {
				return
			}
		case ev, ok := <-sub.Logs:
			if !ok {
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": "log", "data": ev}); err != nil {
				return
			}
		case ev, ok := <-sub.Connections:
			if !ok {
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": "connection_status", "data": ev}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// discardInbound drains client frames so control frames (pong, close) are
// processed, cancelling ctx once the client goes away. No read deadline is
// set, so a client that stops answering pings is not disconnected by it.
func discardInbound(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func statusFor(err error) int {
	var transportErr *gateway.TransportError
	switch {
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	case errors.Is(err, dart.ErrInvalidAddress), errors.Is(err, dart.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}
