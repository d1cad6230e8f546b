// Package presence implements the party presence protocol: joining, soft
// leaving, reconnecting and the ready check, on top of party.Registry.
//
// All Protocol methods are expected to be called from a single goroutine, the
// transport's event loop, so events within a party are handled in arrival
// order.
package presence

import (
	"errors"
	"fmt"
	"log"

	"github.com/npezzotti/go-partynight/internal/heartbeat"
	"github.com/npezzotti/go-partynight/internal/party"
	"github.com/npezzotti/go-partynight/internal/types"
)

// Conn is a single transport connection.
type Conn interface {
	ID() string
	Send(msg *types.ServerMessage) bool
	Close() error
}

// Rooms groups connections by party for broadcasting.
type Rooms interface {
	Join(partyId string, c Conn)
	Broadcast(partyId string, msg *types.ServerMessage)
}

type Protocol struct {
	log      *log.Logger
	registry *party.Registry
	monitor  *heartbeat.Monitor
	rooms    Rooms
}

func NewProtocol(logger *log.Logger, registry *party.Registry, monitor *heartbeat.Monitor, rooms Rooms) *Protocol {
	return &Protocol{
		log:      logger,
		registry: registry,
		monitor:  monitor,
		rooms:    rooms,
	}
}

// Connect starts liveness probing for a new connection.
func (p *Protocol) Connect(c Conn) {
	p.monitor.Register(c)
}

// Disconnect handles a closed connection: every party the connection was
// active in sees the member go inactive and gets a cleanup scheduled. The
// transport must have removed c from its rooms already.
func (p *Protocol) Disconnect(c Conn) {
	defer p.recoverFrom(c, nil)

	p.monitor.Unregister(c.ID())

	for {
		d, ok := p.registry.MarkInactive(c.ID())
		if !ok {
			return
		}

		p.log.Printf("user %q disconnected from party %q (connection %q, %d active)",
			d.Member.UserId, d.PartyId, c.ID(), d.ActiveRemaining)

		p.rooms.Broadcast(d.PartyId, types.NewNotification(&types.Notification{
			MemberLeft: &types.MemberDisconnected{
				PartyId:  d.PartyId,
				UserId:   d.Member.UserId,
				UserName: d.Member.UserName,
			},
		}))

		p.registry.ScheduleCleanup(d.PartyId)
	}
}

// Handle dispatches one inbound message from c. Failures are reported to c
// only.
func (p *Protocol) Handle(c Conn, msg *types.ClientMessage) {
	defer p.recoverFrom(c, msg)

	var err error
	switch msg.Kind() {
	case types.EventCreate:
		err = p.handleCreate(c, msg)
	case types.EventJoin:
		err = p.handleJoin(c, msg)
	case types.EventReady:
		err = p.handleReady(c, msg)
	case types.EventReconnect:
		err = p.handleConnect(c, msg)
	case types.EventPong:
		p.monitor.Pong(c.ID())
	case types.EventUnknown:
		c.Send(types.ErrInvalidMessage(msg.Id))
	}

	if err != nil {
		p.fail(c, msg, err)
	}
}

func (p *Protocol) recoverFrom(c Conn, msg *types.ClientMessage) {
	if rec := recover(); rec != nil {
		err, ok := rec.(error)
		if !ok {
			err = fmt.Errorf("%v", rec)
		}
		p.fail(c, msg, fmt.Errorf("panic: %w", err))
	}
}

// fail logs err with its context and reports it to the originating connection.
func (p *Protocol) fail(c Conn, msg *types.ClientMessage, err error) {
	var (
		id      int
		kind    = "disconnect"
		partyId string
	)
	if msg != nil {
		id = msg.Id
		kind = msg.Kind().String()
		partyId = msg.PartyId()
	}

	p.log.Printf("%s failed (party %q, connection %q): %v", kind, partyId, c.ID(), err)

	if msg == nil {
		// the connection is already gone
		return
	}

	var resp *types.ServerMessage
	switch {
	case errors.Is(err, party.ErrPartyNotFound):
		resp = types.ErrPartyNotFound(id)
	case errors.Is(err, party.ErrMemberNotFound):
		resp = types.ErrUserNotFound(id)
	case errors.Is(err, errInvalidPayload):
		resp = types.ErrInvalidMessage(id)
	default:
		resp = types.ErrInternalError(id)
	}

	if !c.Send(resp) {
		p.log.Printf("could not deliver error to connection %q", c.ID())
	}
}
