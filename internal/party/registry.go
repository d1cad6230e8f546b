// Package party tracks which users are present in which party for the
// lifetime of the process.
package party

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-partynight/internal/mirror"
	"github.com/npezzotti/go-partynight/internal/stats"
	"github.com/npezzotti/go-partynight/internal/types"
)

const DefaultCleanupGrace = 5 * time.Minute

var (
	ErrPartyNotFound  = errors.New("party not found")
	ErrMemberNotFound = errors.New("member not found")
)

// Mirror receives best-effort copies of registry state. Implementations must
// not block.
type Mirror interface {
	Put(key string, value any, ttl time.Duration)
	Delete(keys ...string)
}

type membership struct {
	id      string
	hostId  string
	members []*types.Member
	// idleSince is when the active member count last dropped to zero
	idleSince time.Time
	cleanup   *time.Timer
}

func (p *membership) activeCount() int {
	n := 0
	for _, m := range p.members {
		if m.Active() {
			n++
		}
	}
	return n
}

func (p *membership) allReady() bool {
	if len(p.members) == 0 {
		return false
	}
	for _, m := range p.members {
		if !m.IsReady {
			return false
		}
	}
	return true
}

func (p *membership) byUserId(userId string) *types.Member {
	for _, m := range p.members {
		if m.UserId == userId {
			return m
		}
	}
	return nil
}

func (p *membership) byConnectionId(connId string) *types.Member {
	var inactive *types.Member
	for _, m := range p.members {
		if m.ConnectionId != connId {
			continue
		}
		if m.Active() {
			return m
		}
		if inactive == nil {
			inactive = m
		}
	}
	return inactive
}

func (p *membership) snapshot() []types.Member {
	out := make([]types.Member, len(p.members))
	for i, m := range p.members {
		out[i] = *m
	}
	return out
}

// Departure describes a member that was just marked inactive.
type Departure struct {
	PartyId         string
	Member          types.Member
	ActiveRemaining int
}

type ReadyResult struct {
	Member   types.Member
	AllReady bool
	// BecameAllReady is set only when this call moved the party from
	// not-all-ready to all-ready.
	BecameAllReady bool
}

type Registry struct {
	mu      sync.RWMutex
	log     *log.Logger
	stats   stats.StatsProvider
	mirror  Mirror
	parties map[string]*membership
	grace   time.Duration
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry returns an empty registry. m may be nil to keep state purely in
// memory. grace is how long a party with no active members is retained.
func NewRegistry(logger *log.Logger, su stats.StatsProvider, m Mirror, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultCleanupGrace
	}

	return &Registry{
		log:     logger,
		stats:   su,
		mirror:  m,
		parties: make(map[string]*membership),
		grace:   grace,
		ttl:     mirror.DefaultTTL,
		now:     time.Now,
	}
}

// SetMirrorTTL overrides how long mirrored keys live. Non-positive values are
// ignored.
func (r *Registry) SetMirrorTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = ttl
}

func (r *Registry) getOrCreate(partyId string) *membership {
	p, ok := r.parties[partyId]
	if !ok {
		p = &membership{id: partyId}
		r.parties[partyId] = p
		r.stats.Incr(stats.NumParties)
		r.log.Printf("tracking party %q", partyId)
	}
	return p
}

// activate binds m to connId and marks it active. Any other active member of
// the party still holding connId is marked inactive.
func (r *Registry) activate(p *membership, m *types.Member, connId string) {
	for _, other := range p.members {
		if other != m && other.Active() && other.ConnectionId == connId {
			r.log.Printf("connection %q rebound from user %q to %q in party %q", connId, other.UserId, m.UserId, p.id)
			other.Status = types.StatusInactive
		}
	}

	m.ConnectionId = connId
	m.Status = types.StatusActive

	p.idleSince = time.Time{}
	if p.cleanup != nil {
		p.cleanup.Stop()
		p.cleanup = nil
	}
}

// AddOrUpdateMember records userId as an active member of partyId using connId,
// creating the party and the member as needed.
func (r *Registry) AddOrUpdateMember(partyId, connId, userId, userName string) types.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(partyId)
	m := p.byUserId(userId)
	if m == nil {
		m = &types.Member{
			UserId:   userId,
			UserName: userName,
		}
		p.members = append(p.members, m)
	}

	r.activate(p, m, connId)
	r.mirrorMembers(p)

	return *m
}

// RecordHost remembers the party's host and mirrors the party header.
func (r *Registry) RecordHost(partyId string, header types.PartyHeader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(partyId)
	p.hostId = header.HostId

	if r.mirror != nil {
		r.mirror.Put(mirror.PartyKey(partyId), header, r.ttl)
	}
}

// MarkInactive flips the active member owning connId to inactive. It returns
// false when connId is not an active member of any party.
func (r *Registry) MarkInactive(connId string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.parties {
		m := p.byConnectionId(connId)
		if m == nil || !m.Active() {
			continue
		}

		m.Status = types.StatusInactive
		remaining := p.activeCount()
		if remaining == 0 {
			p.idleSince = r.now()
		}
		r.mirrorMembers(p)

		return Departure{
			PartyId:         id,
			Member:          *m,
			ActiveRemaining: remaining,
		}, true
	}

	return Departure{}, false
}

// SetReady updates the readiness of the member bound to connId and recomputes
// whether every tracked member, active or not, is ready.
func (r *Registry) SetReady(partyId, connId string, isReady bool) (ReadyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyId]
	if !ok {
		return ReadyResult{}, ErrPartyNotFound
	}

	m := p.byConnectionId(connId)
	if m == nil {
		return ReadyResult{}, ErrMemberNotFound
	}

	wasAllReady := p.allReady()
	m.IsReady = isReady
	allReady := p.allReady()
	r.mirrorMembers(p)

	return ReadyResult{
		Member:         *m,
		AllReady:       allReady,
		BecameAllReady: allReady && !wasAllReady,
	}, nil
}

func (r *Registry) FindByUserId(partyId, userId string) (types.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parties[partyId]
	if !ok {
		return types.Member{}, ErrPartyNotFound
	}

	m := p.byUserId(userId)
	if m == nil {
		return types.Member{}, ErrMemberNotFound
	}

	return *m, nil
}

// Reconnect rebinds an existing member to connId. Unlike AddOrUpdateMember it
// never creates a party or a member.
func (r *Registry) Reconnect(partyId, userId, connId string) (types.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyId]
	if !ok {
		return types.Member{}, ErrPartyNotFound
	}

	m := p.byUserId(userId)
	if m == nil {
		return types.Member{}, ErrMemberNotFound
	}

	r.activate(p, m, connId)
	r.mirrorMembers(p)

	return *m, nil
}

// Members returns a copy of the party's members in join order.
func (r *Registry) Members(partyId string) ([]types.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parties[partyId]
	if !ok {
		return nil, false
	}

	return p.snapshot(), true
}

func (r *Registry) State(partyId string) (types.PartyState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parties[partyId]
	if !ok {
		return types.PartyState{}, false
	}

	return types.PartyState{
		PartyId: p.id,
		HostId:  p.hostId,
		Users:   p.snapshot(),
	}, true
}

func (r *Registry) Parties() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.parties)
}

// ScheduleCleanup arms the grace timer for partyId, replacing any earlier one.
// The timer only carries the party id; whether to delete is decided from the
// state found when it fires.
func (r *Registry) ScheduleCleanup(partyId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyId]
	if !ok {
		return
	}

	if p.cleanup != nil {
		p.cleanup.Stop()
	}

	r.log.Printf("scheduling cleanup of party %q in %s", partyId, r.grace)
	p.cleanup = time.AfterFunc(r.grace, func() {
		r.expire(partyId)
	})
}

func (r *Registry) expire(partyId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[partyId]
	if !ok {
		return
	}

	if n := p.activeCount(); n > 0 {
		r.log.Printf("party %q has %d active members, skipping cleanup", partyId, n)
		return
	}

	// a newer timer owns the deletion if the idle window restarted
	if p.idleSince.IsZero() || r.now().Sub(p.idleSince) < r.grace {
		return
	}

	if p.cleanup != nil {
		p.cleanup.Stop()
	}
	delete(r.parties, partyId)
	r.stats.Decr(stats.NumParties)
	r.log.Printf("removed idle party %q", partyId)

	if r.mirror != nil {
		r.mirror.Delete(mirror.PartyKey(partyId), mirror.MembersKey(partyId))
	}
}

// Stop cancels every pending cleanup timer.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.parties {
		if p.cleanup != nil {
			p.cleanup.Stop()
			p.cleanup = nil
		}
	}
}

func (r *Registry) mirrorMembers(p *membership) {
	if r.mirror == nil {
		return
	}
	r.mirror.Put(mirror.MembersKey(p.id), p.snapshot(), r.ttl)
}
