package web

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/opensourceleg/go-osl/internal/log"
	"github.com/opensourceleg/go-osl/pkg/telemetry"
)

// registerOpsRoutes mounts the bidirectional operator websocket. Unlike the
// telemetry stream, /ws/ops accepts commands: start, stop and fault reset,
// each acknowledged with a status envelope.
func (s *Server) registerOpsRoutes(app *fiber.App) {
	app.Get("/ws/ops", websocket.New(s.handleOps))
}

func (s *Server) handleOps(c *websocket.Conn) {
	sessionID := uuid.NewString()
	log.Info("ops session opened", "session", sessionID)
	defer log.Info("ops session closed", "session", sessionID)

	// Greet with the current status so the operator sees state immediately.
	s.writeStatus(c)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		msg, err := telemetry.ParseMessage(data)
		if err != nil {
			log.Warn("ops parse error", "session", sessionID, "error", err)
			continue
		}

		switch msg.Type {
		case telemetry.TypeCommand:
			var cmd telemetry.CommandData
			if err := msg.ParseData(&cmd); err != nil {
				log.Warn("ops command decode error", "session", sessionID, "error", err)
				continue
			}
			s.applyCommand(sessionID, cmd)
			s.writeStatus(c)

		case telemetry.TypePing:
			var ping telemetry.PingData
			if err := msg.ParseData(&ping); err != nil {
				continue
			}
			now := time.Now().UnixMilli()
			pong, err := telemetry.NewMessage(telemetry.TypePong, telemetry.PongData{
				ID:        ping.ID,
				PingTS:    msg.Timestamp,
				PongTS:    now,
				LatencyMs: now - msg.Timestamp,
			})
			if err == nil {
				s.writeMessage(c, pong)
			}
		}
	}
}

func (s *Server) applyCommand(sessionID string, cmd telemetry.CommandData) {
	log.Info("ops command", "session", sessionID, "action", cmd.Action)
	switch cmd.Action {
	case "start":
		if !s.sched.Snapshot().Running {
			s.sched.Start(context.Background())
		}
	case "stop":
		s.sched.Stop()
	case "reset_fault":
		s.sched.RequestReset()
	default:
		log.Warn("unknown ops action", "session", sessionID, "action", cmd.Action)
	}
}

func (s *Server) writeStatus(c *websocket.Conn) {
	msg, err := telemetry.NewMessage(telemetry.TypeStatus, s.sched.Snapshot())
	if err != nil {
		return
	}
	s.writeMessage(c, msg)
}

func (s *Server) writeMessage(c *websocket.Conn, msg *telemetry.Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("ops write failed", "error", err)
	}
}
