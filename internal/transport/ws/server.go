package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/world"
)

// Server feeds one world over websockets. A client says HELLO as an entity,
// then SUBMITs operations sent from that entity and receives an OBS per step
// with the operations delivered to it.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess, out := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		defer s.detach(sess.id)

		// Only the writer goroutine touches the connection after the
		// handshake; the reader hands replies to it.
		replies := make(chan []byte, 16)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-replies:
					if err := writeRaw(conn, b); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						return
					}
					if err := writeRaw(conn, b); err != nil {
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
				break
			}
			ack, ok := s.handleMessage(sess, msg)
			if !ok {
				continue
			}
			b, _ := json.Marshal(ack)
			select {
			case replies <- b:
			case <-ctx.Done():
			}
		}
	}
}

type session struct {
	id       string
	entityID string
}

// handleMessage turns one client message into an ACK. Messages that are not
// SUBMITs are ignored.
func (s *Server) handleMessage(sess *session, msg []byte) (protocol.AckMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubmit {
		return protocol.AckMsg{}, false
	}
	var sub protocol.SubmitMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return protocol.AckMsg{}, false
	}
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          sub.ReqID,
	}
	if sub.ProtocolVersion != protocol.Version {
		ack.Code = protocol.CodeProtoBadRequest
		ack.Message = "bad protocol_version"
		return ack, true
	}
	op, err := protocol.DecodeOperation(sub.Op)
	if err != nil {
		ack.Code = protocol.CodeBadRequest
		ack.Message = err.Error()
		return ack, true
	}
	// Clients act only as the entity they said HELLO as.
	op.From = sess.entityID
	if err := s.world.Submit(op); err != nil {
		ack.Code = protocol.CodeWorldBusy
		ack.Message = err.Error()
		return ack, true
	}
	ack.Accepted = true
	ack.Step = s.world.CurrentStep()
	return ack, true
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil, nil
	}
	if hello.EntityID == "" {
		closeWith(conn, "missing entity_id")
		return nil, nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out := make(chan []byte, maxQ)
	sess := &session{id: uuid.NewString(), entityID: hello.EntityID}

	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.world.AttachObserver(joinCtx, world.ObserverJoin{
		SessionID: sess.id,
		EntityID:  sess.entityID,
		Out:       out,
	}); err != nil {
		s.logf("attach %s: %v", sess.entityID, err)
		return nil, nil
	}

	m := s.world.Metrics()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		EntityID:        sess.entityID,
		WorldID:         s.world.ID(),
		Step:            m.Step,
		Clock:           m.Clock,
		TickRateHz:      m.TickRateHz,
		TypesDigest:     s.world.TypesDigest(),
	}
	b, _ := json.Marshal(welcome)
	if err := writeRaw(conn, b); err != nil {
		s.detach(sess.id)
		return nil, nil
	}
	return sess, out
}

// detach outlives the request context, which is usually already done here.
func (s *Server) detach(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.world.DetachObserver(ctx, sessionID); err != nil {
		s.logf("detach %s: %v", sessionID, err)
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeRaw(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
