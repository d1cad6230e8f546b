package presence

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-partynight/internal/types"
)

var errInvalidPayload = errors.New("invalid payload")

// firstSuite is the suite a newly created party starts in.
const firstSuite = "1"

func (p *Protocol) handleCreate(c Conn, msg *types.ClientMessage) error {
	req := msg.Create
	if req.PartyId == "" || req.HostId == "" {
		return errInvalidPayload
	}

	p.rooms.Join(req.PartyId, c)
	p.registry.RecordHost(req.PartyId, types.PartyHeader{
		HostId:       req.HostId,
		Status:       types.PartyStatusLobby,
		CurrentSuite: firstSuite,
	})
	member := p.registry.AddOrUpdateMember(req.PartyId, c.ID(), req.HostId, req.UserName)
	p.log.Printf("party %q created by %q", req.PartyId, req.HostId)

	p.broadcastJoined(req.PartyId, member)
	c.Send(types.NewNotification(&types.Notification{
		PartyState: &types.PartyStateChange{
			PartyId: req.PartyId,
			Status:  types.PartyStatusLobby,
			Message: "Party created successfully",
		},
	}))

	return nil
}

func (p *Protocol) handleJoin(c Conn, msg *types.ClientMessage) error {
	req := msg.Join
	if req.PartyId == "" || req.UserId == "" {
		return errInvalidPayload
	}

	p.rooms.Join(req.PartyId, c)
	member := p.registry.AddOrUpdateMember(req.PartyId, c.ID(), req.UserId, req.UserName)
	p.log.Printf("user %q joined party %q", req.UserId, req.PartyId)

	p.broadcastJoined(req.PartyId, member)
	return nil
}

// broadcastJoined announces member to the whole party, the joiner included.
func (p *Protocol) broadcastJoined(partyId string, member types.Member) {
	p.rooms.Broadcast(partyId, types.NewNotification(&types.Notification{
		MemberJoined: &types.MemberJoined{
			PartyId: partyId,
			User:    member,
		},
	}))
}

func (p *Protocol) handleReady(c Conn, msg *types.ClientMessage) error {
	req := msg.Ready

	res, err := p.registry.SetReady(req.PartyId, c.ID(), req.IsReady)
	if err != nil {
		return err
	}

	p.rooms.Broadcast(req.PartyId, types.NewNotification(&types.Notification{
		ReadyState: &types.ReadyStateChange{
			PartyId:  req.PartyId,
			UserId:   res.Member.UserId,
			UserName: res.Member.UserName,
			IsReady:  res.Member.IsReady,
			AllReady: res.AllReady,
		},
	}))

	if res.BecameAllReady {
		p.log.Printf("all members of party %q are ready", req.PartyId)
		p.rooms.Broadcast(req.PartyId, types.NewNotification(&types.Notification{
			PartyState: &types.PartyStateChange{
				PartyId: req.PartyId,
				Status:  types.PartyStatusReady,
				Message: "All users ready",
			},
		}))
	}

	return nil
}

func (p *Protocol) handleConnect(c Conn, msg *types.ClientMessage) error {
	req := msg.Connect
	if !req.IsReconnect {
		c.Send(types.NoErrOK(msg.Id, nil))
		return nil
	}

	if _, err := p.registry.FindByUserId(req.PartyId, req.UserId); err != nil {
		return err
	}

	member, err := p.registry.Reconnect(req.PartyId, req.UserId, c.ID())
	if err != nil {
		return err
	}
	p.rooms.Join(req.PartyId, c)
	p.log.Printf("user %q reconnected to party %q on connection %q", req.UserId, req.PartyId, c.ID())

	p.rooms.Broadcast(req.PartyId, types.NewNotification(&types.Notification{
		StatusChange: &types.StatusChange{
			PartyId:  req.PartyId,
			UserId:   member.UserId,
			UserName: member.UserName,
			Status:   types.StatusActive,
			Message:  "User reconnected",
		},
	}))

	state, ok := p.registry.State(req.PartyId)
	if !ok {
		return fmt.Errorf("party %q vanished during reconnect", req.PartyId)
	}
	c.Send(types.NewNotification(&types.Notification{
		StateSync: &state,
	}))

	return nil
}
