// Package serial runs work for the same user one task at a time. Users are
// mapped to lanes with consistent hashing and every lane is a single-worker
// pool, so tasks for one user never overlap inside this process.
package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond"
	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
)

var (
	ErrClosed   = errors.New("dispatcher closed")
	ErrLaneFull = errors.New("lane queue is full")
)

type lane string

func (l lane) String() string {
	return string(l)
}

type hasher struct{}

func (hasher) Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

type Dispatcher struct {
	ring  *consistent.Consistent
	pools map[string]*pond.WorkerPool

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(count, queueSize int) *Dispatcher {
	if count <= 0 {
		count = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	members := make([]consistent.Member, count)
	pools := make(map[string]*pond.WorkerPool, count)
	for i := range members {
		name := fmt.Sprintf("lane-%d", i)
		members[i] = lane(name)
		pools[name] = pond.New(1, queueSize)
	}

	ring := consistent.New(members, consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	})

	return &Dispatcher{ring: ring, pools: pools}
}

// Lane returns the lane a user is pinned to.
func (d *Dispatcher) Lane(userID string) string {
	return d.ring.LocateKey([]byte(userID)).String()
}

// Do runs fn on the user's lane and waits for it to finish or for ctx to end.
// A task whose context ended while it was queued is skipped.
func (d *Dispatcher) Do(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("lane task panicked: %v", r)
			}
		}()
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn(ctx)
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	ok := d.pools[d.Lane(userID)].TrySubmit(task)
	d.mu.RUnlock()
	if !ok {
		return ErrLaneFull
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued tasks to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	for _, p := range d.pools {
		p.StopAndWait()
	}
}
