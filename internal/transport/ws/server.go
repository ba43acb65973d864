package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/arena"
	"skirmish.gg/internal/sim/match"
)

// Server bridges websocket clients to the arena: HELLO/WELCOME handshake,
// full SNAPSHOT on join, DELTA stream, COMMAND submissions. Commands are
// optionally schema-validated before they reach the simulation.
type Server struct {
	arena *arena.Manager
	log   *log.Logger

	// commandSchema, when set, rejects malformed COMMAND payloads at the
	// edge with E_BAD_COMMAND instead of letting them into the inbox.
	commandSchema *jsonschema.Schema

	upgrader websocket.Upgrader
}

func NewServer(mgr *arena.Manager, logger *log.Logger, commandSchema *jsonschema.Schema) *Server {
	return &Server{
		arena:         mgr,
		log:           logger,
		commandSchema: commandSchema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		rt, actorID, out := s.handshake(conn)
		if rt == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		subID, err := rt.Subscribe(ctx, out)
		if err != nil {
			return
		}
		defer rt.Unsubscribe(subID)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				continue
			}
			if actorID == "" {
				s.rejectTo(out, protocol.ErrBadCommand, "observer sessions cannot submit commands")
				continue
			}
			s.handleCommand(out, rt, actorID, msg)
		}
	}
}

// handleCommand never writes the connection directly: the session's writer
// goroutine is the only writer after the handshake, so rejections travel
// through the same out channel as deltas.
func (s *Server) handleCommand(out chan []byte, rt *arena.Runtime, actorID string, msg []byte) {
	if s.commandSchema != nil {
		var payload any
		if err := json.Unmarshal(msg, &payload); err != nil {
			s.rejectTo(out, protocol.ErrBadCommand, "invalid JSON")
			return
		}
		if err := s.commandSchema.Validate(payload); err != nil {
			s.rejectTo(out, protocol.ErrBadCommand, err.Error())
			return
		}
	}

	var cm protocol.CommandMsg
	if err := json.Unmarshal(msg, &cm); err != nil {
		s.rejectTo(out, protocol.ErrBadCommand, "invalid COMMAND payload")
		return
	}
	if cm.ProtocolVersion != protocol.Version {
		s.rejectTo(out, protocol.ErrBadCommand, "bad protocol_version")
		return
	}
	if cm.ActorID != "" && cm.ActorID != actorID {
		s.rejectTo(out, protocol.ErrBadCommand, "actor_id does not match session")
		return
	}

	err := rt.Match().Submit(match.PlayerID(actorID), commandFromMsg(cm))
	if err != nil {
		s.rejectTo(out, rejectCode(err), err.Error())
	}
}

func commandFromMsg(cm protocol.CommandMsg) match.Command {
	cmd := match.Command{
		Kind:         match.CommandKind(cm.Kind),
		TargetID:     match.EntityID(cm.TargetID),
		UnitType:     cm.UnitType,
		BuildingType: cm.BuildingType,
		BuildingID:   match.EntityID(cm.BuildingID),
		TechID:       cm.TechID,
	}
	for _, id := range cm.UnitIDs {
		cmd.UnitIDs = append(cmd.UnitIDs, match.EntityID(id))
	}
	if cm.TargetPos != nil {
		cmd.TargetPos = &match.Vec2{X: cm.TargetPos[0], Y: cm.TargetPos[1]}
	}
	return cmd
}

func rejectCode(err error) string {
	switch {
	case errors.Is(err, match.ErrMatchEnded):
		return protocol.ErrMatchEnded
	case errors.Is(err, match.ErrRateLimited):
		return protocol.ErrRateLimit
	default:
		return protocol.ErrBadCommand
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*arena.Runtime, string, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, "", nil
	}

	rt := s.arena.Runtime(hello.MatchID)
	if rt == nil {
		s.reject(conn, protocol.ErrMatchNotFound, "unknown match: "+hello.MatchID)
		return nil, "", nil
	}
	// An actor_id must be on the roster; only empty (observer) skips the check.
	if hello.ActorID != "" && !rt.Match().HasPlayer(match.PlayerID(hello.ActorID)) {
		s.reject(conn, protocol.ErrBadCommand, "actor not on the match roster: "+hello.ActorID)
		return nil, "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out := make(chan []byte, maxQ)

	m := rt.Match()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		MatchID:         m.ID(),
		ActorID:         hello.ActorID,
		MatchParams: protocol.MatchParams{
			TickRateHz:     m.TickRateHz(),
			MapWidth:       m.MapWidth(),
			MapHeight:      m.MapHeight(),
			TimeLimitTicks: m.TimeLimitTicks(),
		},
		CatalogDigest: m.CatalogDigest(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil, "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	snap, err := rt.Snapshot(ctx)
	cancel()
	if err != nil {
		s.log.Printf("[ws] match %s: snapshot on join: %v", hello.MatchID, err)
		return nil, "", nil
	}
	if err := writeJSON(conn, snap); err != nil {
		return nil, "", nil
	}

	return rt, hello.ActorID, out
}

// reject writes directly and is only safe during the handshake, before the
// writer goroutine exists.
func (s *Server) reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.RejectMsg{
		Type:            protocol.TypeReject,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

// rejectTo queues a REJECT on the session's outbound channel.
func (s *Server) rejectTo(out chan []byte, code, message string) {
	b, err := json.Marshal(protocol.RejectMsg{
		Type:            protocol.TypeReject,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	if err != nil {
		return
	}
	sendLatest(out, b)
}

// sendLatest drops the oldest queued frame when the channel is full, matching
// the delta broadcast policy: a slow session loses old frames, never blocks.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
