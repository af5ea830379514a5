package services

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// keyedMutex linearizes state transitions per entity id. Two concurrent
// transition calls on the same id serialize here, so neither can act on a
// stale read of the pre-transition state.
type keyedMutex struct {
	shards [lockShards]sync.Mutex
}

// entityLocks is shared by every service in the package: cancel, booking
// creation and redispatch all key on the same request id, so they must
// serialize against each other, not only within one service.
var entityLocks = &keyedMutex{}

func (k *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.shards[h.Sum32()%lockShards]
	mu.Lock()
	return mu.Unlock
}
