package realtime

import (
	"encoding/json"
	"time"

	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/state"
)

// Inbound frame types.
const (
	TypeWelcome               = "welcome"
	TypeCurrentProductions    = "current_productions"
	TypeProductionUpdated     = "production_updated"
	TypeProductionTransferred = "production_transferred"
	TypeHistoryUpdated        = "history_updated"
	TypeNotification          = "notification"
	TypeGeneralNotification   = "general_notification"
	TypePong                  = "pong"
)

// Outbound frame types.
const (
	TypeRegister = "register"
	TypePing     = "ping"
)

// Envelope is the wire shape shared by every inbound frame.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// Frame is a decoded inbound frame.
type Frame interface {
	FrameType() string
}

// Welcome is sent by the server right after the socket opens.
type Welcome struct {
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

// CurrentProductions is a snapshot of every running production.
type CurrentProductions struct {
	Productions []state.Production `json:"productions"`
}

// ProductionUpdated carries one changed production.
type ProductionUpdated struct {
	Production state.Production `json:"production"`
}

// ProductionTransferred reports a production handed to another operator.
type ProductionTransferred struct {
	Production   state.Production `json:"production"`
	FromOperator string           `json:"fromOperator,omitempty"`
	ToOperator   string           `json:"toOperator,omitempty"`
}

// HistoryUpdated carries recently finished productions.
type HistoryUpdated struct {
	History []state.Production `json:"history"`
}

// Notification is a server-originated message for the operator.
// General notifications use the same shape but are broadcast to every client.
type Notification struct {
	Title   string                 `json:"title,omitempty"`
	Message string                 `json:"message"`
	Type    state.NotificationType `json:"type,omitempty"`
	General bool                   `json:"-"`
}

// Pong answers a ping.
type Pong struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Unknown is any frame whose type has no decoder.
type Unknown struct {
	Type string
	Data json.RawMessage
}

// FrameType implements Frame.
func (Welcome) FrameType() string { return TypeWelcome }

// FrameType implements Frame.
func (CurrentProductions) FrameType() string { return TypeCurrentProductions }

// FrameType implements Frame.
func (ProductionUpdated) FrameType() string { return TypeProductionUpdated }

// FrameType implements Frame.
func (ProductionTransferred) FrameType() string { return TypeProductionTransferred }

// FrameType implements Frame.
func (HistoryUpdated) FrameType() string { return TypeHistoryUpdated }

// FrameType implements Frame.
func (n Notification) FrameType() string {
	if n.General {
		return TypeGeneralNotification
	}
	return TypeNotification
}

// FrameType implements Frame.
func (Pong) FrameType() string { return TypePong }

// FrameType implements Frame.
func (u Unknown) FrameType() string { return u.Type }

// Decode parses a raw frame into its envelope and typed variant.
// Array-shaped data for the list frames is accepted directly.
func Decode(raw []byte) (Envelope, Frame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, nil, errors.WrapParse("json", "socket frame", err)
	}

	var (
		frame Frame
		err   error
	)
	switch env.Type {
	case TypeWelcome:
		var f Welcome
		err = decodeData(env.Data, &f)
		if f.Message == "" {
			f.Message = env.Message
		}
		frame = f
	case TypeCurrentProductions:
		var f CurrentProductions
		err = decodeList(env.Data, &f.Productions, &f)
		frame = f
	case TypeProductionUpdated:
		var f ProductionUpdated
		err = decodeWrapped(env.Data, &f.Production, &f)
		frame = f
	case TypeProductionTransferred:
		var f ProductionTransferred
		err = decodeWrapped(env.Data, &f.Production, &f)
		frame = f
	case TypeHistoryUpdated:
		var f HistoryUpdated
		err = decodeList(env.Data, &f.History, &f)
		frame = f
	case TypeNotification, TypeGeneralNotification:
		f := Notification{General: env.Type == TypeGeneralNotification}
		err = decodeData(env.Data, &f)
		if f.Message == "" {
			f.Message = env.Message
		}
		if f.Type == "" {
			f.Type = state.NotificationInfo
		}
		frame = f
	case TypePong:
		f := Pong{Timestamp: env.Timestamp}
		frame = f
	case "":
		return env, nil, errors.NewParseError("json", "socket frame", "frame has no type", nil)
	default:
		frame = Unknown{Type: env.Type, Data: env.Data}
	}
	if err != nil {
		return env, nil, errors.WrapParse("json", env.Type, err)
	}
	return env, frame, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// decodeList accepts either a bare array into list or an object into wrapper.
func decodeList[T any](data json.RawMessage, list *[]T, wrapper any) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, list)
	}
	return decodeData(data, wrapper)
}

// decodeWrapped accepts {"production": {...}} or the production object itself.
func decodeWrapped(data json.RawMessage, inner *state.Production, wrapper any) error {
	if err := decodeData(data, wrapper); err != nil {
		return err
	}
	if inner.ID != "" {
		return nil
	}
	return decodeData(data, inner)
}

// registerFrame identifies the operator to the server.
type registerFrame struct {
	Type         string `json:"type"`
	OperatorID   string `json:"operatorId"`
	OperatorName string `json:"operatorName"`
}

type pingFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
