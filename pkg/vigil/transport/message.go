// message.go defines the JSON envelopes exchanged with the collector.

package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/strongdm/vigil/pkg/vigil"
)

// Envelope types.
const (
	TypeRegister   = "register"
	TypeException  = "exception"
	TypeRegistered = "registered"
	TypeError      = "error"
)

// Envelope is the outer shape of every message in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Identity describes this agent to the collector.
type Identity struct {
	APIKey       string
	AgentID      string
	AgentVersion string
	Environment  string
	Hostname     string
}

// RegisterPayload is sent immediately after every successful connect.
type RegisterPayload struct {
	APIKey         string `json:"api_key"`
	AgentID        string `json:"agent_id"`
	Hostname       string `json:"hostname"`
	Runtime        string `json:"runtime"`
	RuntimeVersion string `json:"runtime_version"`
	AgentVersion   string `json:"agent_version"`
	Environment    string `json:"environment"`
}

// ServerError is the payload of an "error" message from the collector.
type ServerError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e ServerError) Error() string {
	if e.Code == "" {
		return "collector error: " + e.Message
	}
	return fmt.Sprintf("collector error %s: %s", e.Code, e.Message)
}

// NewRegisterMessage encodes the register envelope for id.
func NewRegisterMessage(id Identity, now time.Time) (Outbound, error) {
	rt := vigil.CurrentRuntime()
	return encode(TypeRegister, RegisterPayload{
		APIKey:         id.APIKey,
		AgentID:        id.AgentID,
		Hostname:       id.Hostname,
		Runtime:        rt.Runtime,
		RuntimeVersion: rt.RuntimeVersion,
		AgentVersion:   id.AgentVersion,
		Environment:    id.Environment,
	}, now)
}

// NewExceptionMessage encodes record as an exception envelope. The payload is
// the record's fields plus agent_id, environment, runtime and runtime_info,
// which win over same-named record fields.
func NewExceptionMessage(record vigil.CaptureRecord, id Identity, now time.Time) (Outbound, error) {
	fields, err := record.Fields()
	if err != nil {
		return Outbound{}, fmt.Errorf("encode capture %s: %w", record.ID, err)
	}
	fields["agent_id"] = id.AgentID
	fields["environment"] = id.Environment
	fields["runtime"] = vigil.RuntimeName
	fields["runtime_info"] = vigil.CurrentRuntime()
	return encode(TypeException, fields, now)
}

func encode(msgType string, payload any, now time.Time) (Outbound, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Outbound{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{
		Type:      msgType,
		Payload:   raw,
		Timestamp: now.UTC().Format(vigil.CapturedTimeFormat),
	})
	if err != nil {
		return Outbound{}, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return Outbound{Type: msgType, Data: data}, nil
}

// ParseEnvelope decodes an inbound message. Messages without a type are
// rejected.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("malformed message: missing type")
	}
	return env, nil
}

// ParseServerError reads an error payload, which may be an object with
// code/message or a bare string.
func ParseServerError(payload json.RawMessage) ServerError {
	var se ServerError
	if len(payload) == 0 {
		return se
	}
	if err := json.Unmarshal(payload, &se); err == nil {
		return se
	}
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		return ServerError{Message: text}
	}
	return ServerError{Message: string(payload)}
}
