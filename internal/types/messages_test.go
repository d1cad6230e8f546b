package types

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientMessageKind(t *testing.T) {
	tcases := []struct {
		name    string
		msg     ClientMessage
		kind    EventKind
		partyId string
	}{
		{
			name:    "create",
			msg:     ClientMessage{Create: &CreateParty{PartyId: "p1", HostId: "h"}},
			kind:    EventCreate,
			partyId: "p1",
		},
		{
			name:    "join",
			msg:     ClientMessage{Join: &JoinParty{PartyId: "p2", UserId: "u"}},
			kind:    EventJoin,
			partyId: "p2",
		},
		{
			name:    "ready",
			msg:     ClientMessage{Ready: &ReadyToggle{PartyId: "p3", IsReady: true}},
			kind:    EventReady,
			partyId: "p3",
		},
		{
			name:    "reconnect",
			msg:     ClientMessage{Connect: &UserConnect{IsReconnect: true, PartyId: "p4"}},
			kind:    EventReconnect,
			partyId: "p4",
		},
		{
			name: "pong",
			msg:  ClientMessage{Pong: &HeartbeatPong{Timestamp: 1}},
			kind: EventPong,
		},
		{
			name: "empty",
			msg:  ClientMessage{},
			kind: EventUnknown,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.msg.Kind(), "expected event kind to match")
			assert.Equal(t, tc.partyId, tc.msg.PartyId(), "expected party id to match")
		})
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "party:create", EventCreate.String())
	assert.Equal(t, "party:join", EventJoin.String())
	assert.Equal(t, "user:ready", EventReady.String())
	assert.Equal(t, "user:connect", EventReconnect.String())
	assert.Equal(t, "heartbeat:pong", EventPong.String())
	assert.Equal(t, "unknown", EventUnknown.String())
}

func TestClientMessageUnmarshal(t *testing.T) {
	raw := `{"id":7,"ready":{"party_id":"P1","is_ready":true}}`

	var msg ClientMessage
	err := json.Unmarshal([]byte(raw), &msg)
	assert.NoError(t, err, "expected no error decoding message")
	assert.Equal(t, 7, msg.Id)
	assert.Equal(t, EventReady, msg.Kind())
	assert.True(t, msg.Ready.IsReady, "expected is_ready to be decoded")
}

func TestServerMessageSerialization(t *testing.T) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"` + msg.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := json.Marshal(msg)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func TestErrorResponses(t *testing.T) {
	tcases := []struct {
		name string
		msg  *ServerMessage
		code int
		id   int
	}{
		{"party not found", ErrPartyNotFound(3), http.StatusNotFound, 3},
		{"user not found", ErrUserNotFound(4), http.StatusNotFound, 4},
		{"internal error", ErrInternalError(5), http.StatusInternalServerError, 5},
		{"service unavailable", ErrServiceUnavailable(6), http.StatusServiceUnavailable, 6},
		{"too many requests", ErrTooManyRequests(7), http.StatusTooManyRequests, 7},
		{"invalid message", ErrInvalidMessage(8), http.StatusBadRequest, 8},
		{"invalid message without id", ErrInvalidMessage(-1), http.StatusBadRequest, 0},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotNil(t, tc.msg.Response, "expected a response payload")
			assert.Equal(t, tc.code, tc.msg.Response.ResponseCode)
			assert.Equal(t, tc.id, tc.msg.Id)
			assert.NotEmpty(t, tc.msg.Response.Error, "expected an error text")
		})
	}
}

func TestNewHeartbeatPing(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	msg := NewHeartbeatPing(ts)
	assert.NotNil(t, msg.Heartbeat)
	assert.Equal(t, HeartbeatPing, msg.Heartbeat.Type)
	assert.Equal(t, int64(1700000000000), msg.Heartbeat.Timestamp)

	timeout := NewHeartbeatTimeout()
	assert.Equal(t, HeartbeatTimeout, timeout.Heartbeat.Type)
}
