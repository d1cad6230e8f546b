package server

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-partynight/internal/presence"
	"github.com/npezzotti/go-partynight/internal/stats"
	"github.com/npezzotti/go-partynight/internal/types"
	"golang.org/x/time/rate"
)

const (
	DefaultMessageRate  = 20
	DefaultMessageBurst = 40
)

type event struct {
	client *Client
	msg    *types.ClientMessage
}

type stopReq struct {
	done chan struct{}
}

// PartyServer owns the event loop every protocol event runs on.
type PartyServer struct {
	log            *log.Logger
	stats          stats.StatsProvider
	protocol       *presence.Protocol
	rooms          *Rooms
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	registerChan   chan *Client
	unregisterChan chan *Client
	eventChan      chan *event
	msgRate        rate.Limit
	msgBurst       int
	stop           chan stopReq
	done           chan struct{}
}

// NewPartyServer creates a server dispatching to protocol. msgRate and
// msgBurst bound how fast a single client may send; non-positive values use
// the defaults.
func NewPartyServer(logger *log.Logger, su stats.StatsProvider, protocol *presence.Protocol, rooms *Rooms, msgRate float64, msgBurst int) *PartyServer {
	if msgRate <= 0 {
		msgRate = DefaultMessageRate
	}
	if msgBurst <= 0 {
		msgBurst = DefaultMessageBurst
	}

	return &PartyServer{
		log:            logger,
		stats:          su,
		protocol:       protocol,
		rooms:          rooms,
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		unregisterChan: make(chan *Client),
		eventChan:      make(chan *event, 256),
		msgRate:        rate.Limit(msgRate),
		msgBurst:       msgBurst,
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}
}

func (ps *PartyServer) Run() {
	for {
		select {
		case c := <-ps.registerChan:
			ps.handleRegister(c)
		case c := <-ps.unregisterChan:
			ps.handleUnregister(c)
		case ev := <-ps.eventChan:
			ps.handleEvent(ev)
		case req := <-ps.stop:
			ps.log.Println("closing client connections")
			ps.clientsLock.Lock()
			for c := range ps.clients {
				c.Close()
			}
			ps.clientsLock.Unlock()

			close(ps.done)
			close(req.done)
			return
		}
	}
}

func (ps *PartyServer) handleRegister(c *Client) {
	ps.log.Printf("adding connection %q", c.ID())
	ps.addClient(c)
	ps.protocol.Connect(c)
}

func (ps *PartyServer) handleUnregister(c *Client) {
	if !ps.removeClient(c) {
		return
	}
	ps.log.Printf("removing connection %q", c.ID())
	ps.rooms.Leave(c)
	ps.protocol.Disconnect(c)
}

// handleEvent drops events from connections that are no longer registered. A
// message queued just before the socket closed may be selected after its
// unregister.
func (ps *PartyServer) handleEvent(ev *event) {
	if !ps.hasClient(ev.client) {
		ps.log.Printf("dropping %s from closed connection %q", ev.msg.Kind(), ev.client.ID())
		return
	}

	ps.protocol.Handle(ev.client, ev.msg)
}

// RegisterClient hands a new connection to the event loop.
func (ps *PartyServer) RegisterClient(c *Client) {
	select {
	case ps.registerChan <- c:
	case <-ps.done:
		c.Close()
	}
}

func (ps *PartyServer) unregisterClient(c *Client) {
	select {
	case ps.unregisterChan <- c:
	case <-ps.done:
	}
}

// dispatch queues msg for the event loop, reporting false if the loop is
// saturated or gone.
func (ps *PartyServer) dispatch(c *Client, msg *types.ClientMessage) bool {
	select {
	case ps.eventChan <- &event{client: c, msg: msg}:
		return true
	case <-ps.done:
		return false
	default:
		ps.log.Printf("event channel full, rejecting message from %q", c.ID())
		return false
	}
}

func (ps *PartyServer) newLimiter() *rate.Limiter {
	return rate.NewLimiter(ps.msgRate, ps.msgBurst)
}

func (ps *PartyServer) addClient(c *Client) {
	ps.clientsLock.Lock()
	defer ps.clientsLock.Unlock()

	ps.clients[c] = struct{}{}
	ps.stats.Incr(stats.NumConnections)
}

// removeClient reports whether c was still registered.
func (ps *PartyServer) removeClient(c *Client) bool {
	ps.clientsLock.Lock()
	defer ps.clientsLock.Unlock()

	if _, ok := ps.clients[c]; !ok {
		return false
	}

	delete(ps.clients, c)
	ps.stats.Decr(stats.NumConnections)
	return true
}

func (ps *PartyServer) hasClient(c *Client) bool {
	ps.clientsLock.Lock()
	defer ps.clientsLock.Unlock()

	_, ok := ps.clients[c]
	return ok
}

// NumClients returns the number of registered connections.
func (ps *PartyServer) NumClients() int {
	ps.clientsLock.Lock()
	defer ps.clientsLock.Unlock()

	return len(ps.clients)
}

// Shutdown stops the event loop and closes every client connection.
func (ps *PartyServer) Shutdown(ctx context.Context) error {
	ps.log.Println("shutting down party server")
	req := stopReq{done: make(chan struct{})}

	select {
	case ps.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
