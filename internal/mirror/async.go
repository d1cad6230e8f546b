package mirror

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-partynight/internal/stats"
)

const (
	defaultQueueSize = 256
	opTimeout        = 2 * time.Second
)

type opKind int

const (
	opSet opKind = iota
	opDelete
)

type op struct {
	kind  opKind
	keys  []string
	value []byte
	ttl   time.Duration
}

// Async submits writes to a Store from a background worker so callers never
// wait on the store. Writes are dropped when the queue is full or the
// dispatcher is closed.
type Async struct {
	store    Store
	log      *log.Logger
	stats    stats.StatsProvider
	queue    chan op
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// mu orders enqueues against Close so nothing lands after the final drain
	mu     sync.Mutex
	closed bool
}

func NewAsync(store Store, logger *log.Logger, su stats.StatsProvider, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Async{
		store: store,
		log:   logger,
		stats: su,
		queue: make(chan op, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (a *Async) Start() {
	go a.run()
}

// Put encodes value as JSON and queues it for key.
func (a *Async) Put(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		a.log.Printf("mirror: encode %q: %v", key, err)
		a.stats.Incr(stats.NumMirrorFailures)
		return
	}

	a.enqueue(op{kind: opSet, keys: []string{key}, value: raw, ttl: ttl})
}

func (a *Async) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}

	a.enqueue(op{kind: opDelete, keys: keys})
}

func (a *Async) enqueue(o op) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.log.Printf("mirror: dispatcher closed, dropping write for %v", o.keys)
		a.stats.Incr(stats.NumMirrorFailures)
		return
	}

	select {
	case a.queue <- o:
	default:
		a.log.Printf("mirror: queue full, dropping write for %v", o.keys)
		a.stats.Incr(stats.NumMirrorFailures)
	}
}

func (a *Async) run() {
	defer close(a.done)

	for {
		select {
		case o := <-a.queue:
			a.apply(o)
		case <-a.stop:
			// flush whatever was queued before close
			for {
				select {
				case o := <-a.queue:
					a.apply(o)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) apply(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var err error
	switch o.kind {
	case opSet:
		err = a.store.Set(ctx, o.keys[0], o.value, o.ttl)
	case opDelete:
		err = a.store.Delete(ctx, o.keys...)
	}

	if err != nil {
		a.log.Printf("mirror: write %v: %v", o.keys, err)
		a.stats.Incr(stats.NumMirrorFailures)
	}
}

// Close stops accepting writes and waits for queued ones to finish or for
// ctx to expire. It does not close the underlying store.
func (a *Async) Close(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.stop)
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
