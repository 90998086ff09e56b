package syncutil

import (
	"context"
	"sync"
)

const shardCount = 256

// IDLocks is a fixed pool of channel mutexes keyed by a numeric id.
// Ids that share a shard serialize with each other; memory stays bounded
// regardless of how many ids are seen.
type IDLocks struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

// NewIDLocks creates a lock pool.
func NewIDLocks() *IDLocks {
	l := &IDLocks{}
	l.init()
	return l
}

func (l *IDLocks) init() {
	l.once.Do(func() {
		for i := range l.shards {
			l.shards[i] = make(chan struct{}, 1)
			l.shards[i] <- struct{}{}
		}
	})
}

// Lock acquires the shard for id, or returns ctx.Err() if the context ends
// first. The returned function releases the lock and must be called once.
func (l *IDLocks) Lock(ctx context.Context, id uint64) (func(), error) {
	l.init()
	shard := l.shards[mix(id)%shardCount]

	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// mix spreads sequential ids across shards (splitmix64 finalizer).
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
