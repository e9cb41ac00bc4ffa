package sessions

import (
	"sync"

	"github.com/google/uuid"
)

const lockShards = 64

// KeyedLock serializes per-user work across a fixed set of shards. The
// read-decide-write sequence in CreateOrRotate is not atomic on its own;
// locking on the user ID keeps concurrent logins for the same user from
// both observing the pre-eviction state.
type KeyedLock struct {
	shards [lockShards]sync.Mutex
}

func (k *KeyedLock) Lock(userID uuid.UUID) {
	k.shards[shard(userID)].Lock()
}

func (k *KeyedLock) Unlock(userID uuid.UUID) {
	k.shards[shard(userID)].Unlock()
}

func shard(id uuid.UUID) int {
	var sum int
	for _, b := range id {
		sum += int(b)
	}
	return sum % lockShards
}
