package server

import (
	"log"
	"sync"

	"github.com/npezzotti/go-partynight/internal/presence"
	"github.com/npezzotti/go-partynight/internal/types"
)

// Rooms tracks which connections belong to which party so notifications can
// be fanned out.
type Rooms struct {
	log  *log.Logger
	lock sync.RWMutex
	// parties maps a party id to the connections in it
	parties map[string]map[string]presence.Conn
	// joined maps a connection id to the parties it is in
	joined map[string]map[string]struct{}
}

func NewRooms(logger *log.Logger) *Rooms {
	return &Rooms{
		log:     logger,
		parties: make(map[string]map[string]presence.Conn),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds c to the party's room. Joining twice is a no-op.
func (r *Rooms) Join(partyId string, c presence.Conn) {
	r.lock.Lock()
	defer r.lock.Unlock()

	conns, ok := r.parties[partyId]
	if !ok {
		conns = make(map[string]presence.Conn)
		r.parties[partyId] = conns
	}
	conns[c.ID()] = c

	parties, ok := r.joined[c.ID()]
	if !ok {
		parties = make(map[string]struct{})
		r.joined[c.ID()] = parties
	}
	parties[partyId] = struct{}{}
}

// Leave removes c from every room it joined.
func (r *Rooms) Leave(c presence.Conn) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for partyId := range r.joined[c.ID()] {
		conns := r.parties[partyId]
		delete(conns, c.ID())
		if len(conns) == 0 {
			delete(r.parties, partyId)
		}
	}
	delete(r.joined, c.ID())
}

// Broadcast queues msg for every connection in the party.
func (r *Rooms) Broadcast(partyId string, msg *types.ServerMessage) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for id, c := range r.parties[partyId] {
		if !c.Send(msg) {
			r.log.Printf("dropped broadcast to connection %q in party %q", id, partyId)
		}
	}
}

// Size returns the number of connections in the party's room.
func (r *Rooms) Size(partyId string) int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.parties[partyId])
}
