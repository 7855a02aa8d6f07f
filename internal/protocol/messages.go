package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EntityID is the entity this client acts as. Submitted operations are sent
	// from it and operations delivered to it are observed.
	EntityID string `json:"entity_id"`
	MaxQueue int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	EntityID        string  `json:"entity_id"`
	WorldID         string  `json:"world_id"`
	Step            uint64  `json:"step"`
	Clock           float64 `json:"clock"`
	TickRateHz      int     `json:"tick_rate_hz"`
	TypesDigest     string  `json:"types_digest,omitempty"`
}

// SUBMIT (client -> server): one operation to inject into the world.
type SubmitMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id,omitempty"`
	Op              json.RawMessage `json:"op"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Step            uint64 `json:"step,omitempty"`
}

// OBS (server -> client): operations delivered to the observed entity during
// one world step.
type ObsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Step            uint64      `json:"step"`
	Clock           float64     `json:"clock"`
	EntityID        string      `json:"entity_id"`
	Self            *Entity     `json:"self,omitempty"`
	Ops             []Operation `json:"ops"`
}
