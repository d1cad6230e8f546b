package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-partynight/internal/stats"
	"github.com/npezzotti/go-partynight/internal/testutil"
	"github.com/npezzotti/go-partynight/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *types.ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.Send(&types.ServerMessage{})
		assert.True(t, res, "expected Send to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *types.ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &types.ServerMessage{} // pre-fill to simulate a full channel
		res := c.Send(&types.ServerMessage{})
		assert.False(t, res, "expected Send to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &types.ServerMessage{
		BaseMessage: types.BaseMessage{
			Id:        1,
			Timestamp: types.Now(),
		},
		Response: &types.Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func TestClient_Close(t *testing.T) {
	c := &Client{
		closing: make(chan struct{}),
	}

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "expected a second close to be a no-op")

	select {
	case <-c.closing:
	default:
		t.Error("expected closing channel to be closed")
	}
}

func TestNewClient(t *testing.T) {
	ps := NewPartyServer(testutil.TestLogger(t), stats.NewPermissiveMock(), nil, nil, 5, 2)

	a, err := NewClient(nil, ps, ps.log)
	assert.NoError(t, err)
	b, err := NewClient(nil, ps, ps.log)
	assert.NoError(t, err)

	assert.NotEmpty(t, a.ID(), "expected a generated connection id")
	assert.NotEqual(t, a.ID(), b.ID(), "expected connection ids to be unique")
	assert.Equal(t, sendBufferSize, cap(a.send))
	assert.Equal(t, 2, a.limiter.Burst(), "expected the server's burst to be applied")
	assert.NotNil(t, a.closing)
}
