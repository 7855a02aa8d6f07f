package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

func newRunningWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	w, err := world.New(world.WorldConfig{ID: "W1", Seed: 1}, tune, cats, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	for _, s := range []struct{ typ, id, loc string }{
		{"world", "world", ""},
		{"character", "char", "world"},
		{"acorn", "acorn", "world"},
	} {
		attrs := map[string]any{}
		if s.loc != "" {
			attrs["loc"] = s.loc
		}
		if _, err := w.SpawnWithID(s.typ, s.id, attrs); err != nil {
			t.Fatalf("spawn %s: %v", s.id, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func readMsg(t *testing.T, c *websocket.Conn, v any) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != nil {
		if err := json.Unmarshal(b, v); err != nil {
			t.Fatalf("unmarshal %s: %v", base.Type, err)
		}
	}
	return base.Type
}

func TestSubmitIsAckedAndObserved(t *testing.T) {
	w := newRunningWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, EntityID: "char", MaxQueue: 64}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if typ := readMsg(t, c, &welcome); typ != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", typ)
	}
	if welcome.SessionID == "" || welcome.EntityID != "char" || welcome.WorldID != "W1" {
		t.Fatalf("welcome: %+v", welcome)
	}

	// The from field is ignored; the session's entity sends it.
	raw := json.RawMessage(`{"type":"eat","to":"acorn","from":"someone_else"}`)
	if err := c.WriteJSON(protocol.SubmitMsg{Type: protocol.TypeSubmit, ProtocolVersion: protocol.Version, ReqID: "r1", Op: raw}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	acked := false
	nourished := false
	deadline := time.Now().Add(3 * time.Second)
	for (!acked || !nourished) && time.Now().Before(deadline) {
		var m map[string]json.RawMessage
		typ := readMsg(t, c, &m)
		switch typ {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			_ = json.Unmarshal(mustJSON(t, m), &ack)
			if ack.AckFor != "r1" || !ack.Accepted {
				t.Fatalf("ack: %+v", ack)
			}
			acked = true
		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(mustJSON(t, m), &obs); err != nil {
				t.Fatalf("obs: %v", err)
			}
			for _, op := range obs.Ops {
				if op.Type == "nourish" && op.From == "acorn" {
					nourished = true
				}
			}
		}
	}
	if !acked || !nourished {
		t.Fatalf("acked=%v nourished=%v", acked, nourished)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	w := newRunningWorld(t)
	s := NewServer(w, nil)
	sess := &session{id: "s1", entityID: "char"}

	cases := []struct {
		name string
		msg  string
		code string
	}{
		{"bad version", `{"type":"SUBMIT","protocol_version":"0.1","req_id":"a","op":{"type":"eat"}}`, protocol.CodeProtoBadRequest},
		{"schema violation", `{"type":"SUBMIT","protocol_version":"1.0","req_id":"b","op":{"type":"Eat!"}}`, protocol.CodeBadRequest},
		{"both timings", `{"type":"SUBMIT","protocol_version":"1.0","req_id":"c","op":{"type":"tick","seconds":1,"future_seconds":2}}`, protocol.CodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack, ok := s.handleMessage(sess, []byte(tc.msg))
			if !ok {
				t.Fatalf("expected an ack")
			}
			if ack.Accepted || ack.Code != tc.code {
				t.Fatalf("ack: %+v", ack)
			}
		})
	}

	if _, ok := s.handleMessage(sess, []byte(`{"type":"HELLO"}`)); ok {
		t.Fatalf("non-submit messages should not be acked")
	}
}
