package types

import (
	"net/http"
	"time"
)

// EventKind enumerates the inbound events a client may send.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCreate
	EventJoin
	EventReady
	EventReconnect
	EventPong
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "party:create"
	case EventJoin:
		return "party:join"
	case EventReady:
		return "user:ready"
	case EventReconnect:
		return "user:connect"
	case EventPong:
		return "heartbeat:pong"
	default:
		return "unknown"
	}
}

const (
	PartyStatusLobby = "lobby"
	PartyStatusReady = "ready"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Create  *CreateParty   `json:"create,omitempty"`
	Join    *JoinParty     `json:"join,omitempty"`
	Ready   *ReadyToggle   `json:"ready,omitempty"`
	Connect *UserConnect   `json:"connect,omitempty"`
	Pong    *HeartbeatPong `json:"pong,omitempty"`
}

// Kind reports which event the message carries. A message with more than one
// payload set is resolved in declaration order.
func (m *ClientMessage) Kind() EventKind {
	switch {
	case m.Create != nil:
		return EventCreate
	case m.Join != nil:
		return EventJoin
	case m.Ready != nil:
		return EventReady
	case m.Connect != nil:
		return EventReconnect
	case m.Pong != nil:
		return EventPong
	default:
		return EventUnknown
	}
}

// PartyId returns the party the message refers to, if any.
func (m *ClientMessage) PartyId() string {
	switch m.Kind() {
	case EventCreate:
		return m.Create.PartyId
	case EventJoin:
		return m.Join.PartyId
	case EventReady:
		return m.Ready.PartyId
	case EventReconnect:
		return m.Connect.PartyId
	default:
		return ""
	}
}

type CreateParty struct {
	PartyId  string `json:"party_id"`
	HostId   string `json:"host_id"`
	UserName string `json:"user_name"`
}

type JoinParty struct {
	PartyId  string `json:"party_id"`
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type ReadyToggle struct {
	PartyId string `json:"party_id"`
	IsReady bool   `json:"is_ready"`
}

type UserConnect struct {
	IsReconnect bool   `json:"is_reconnect"`
	PartyId     string `json:"party_id"`
	UserId      string `json:"user_id"`
}

type HeartbeatPong struct {
	Timestamp int64 `json:"timestamp"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Heartbeat    *Heartbeat    `json:"heartbeat,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	PartyState   *PartyStateChange   `json:"party_state,omitempty"`
	MemberJoined *MemberJoined       `json:"member_joined,omitempty"`
	MemberLeft   *MemberDisconnected `json:"member_disconnected,omitempty"`
	StatusChange *StatusChange       `json:"status_change,omitempty"`
	ReadyState   *ReadyStateChange   `json:"ready_state,omitempty"`
	StateSync    *PartyState         `json:"state_sync,omitempty"`
}

type PartyStateChange struct {
	PartyId string `json:"party_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type MemberJoined struct {
	PartyId string `json:"party_id"`
	User    Member `json:"user"`
}

type MemberDisconnected struct {
	PartyId  string `json:"party_id"`
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type StatusChange struct {
	PartyId  string       `json:"party_id"`
	UserId   string       `json:"user_id"`
	UserName string       `json:"user_name"`
	Status   MemberStatus `json:"status"`
	Message  string       `json:"message"`
}

type ReadyStateChange struct {
	PartyId  string `json:"party_id"`
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsReady  bool   `json:"is_ready"`
	AllReady bool   `json:"all_ready"`
}

type HeartbeatType string

const (
	HeartbeatPing    HeartbeatType = "ping"
	HeartbeatTimeout HeartbeatType = "timeout"
)

type Heartbeat struct {
	Type      HeartbeatType `json:"type"`
	Timestamp int64         `json:"timestamp,omitempty"`
}

func NewNotification(n *Notification) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: n,
	}
}

func NewHeartbeatPing(ts time.Time) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Heartbeat: &Heartbeat{
			Type:      HeartbeatPing,
			Timestamp: ts.UnixMilli(),
		},
	}
}

func NewHeartbeatTimeout() *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Heartbeat: &Heartbeat{
			Type: HeartbeatTimeout,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func newErr(id, code int, text string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrPartyNotFound(id int) *ServerMessage {
	return newErr(id, http.StatusNotFound, "party not found")
}

func ErrUserNotFound(id int) *ServerMessage {
	return newErr(id, http.StatusNotFound, "user not found in party")
}

func ErrInternalError(id int) *ServerMessage {
	return newErr(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newErr(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrTooManyRequests(id int) *ServerMessage {
	return newErr(id, http.StatusTooManyRequests, "too many requests")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := newErr(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
