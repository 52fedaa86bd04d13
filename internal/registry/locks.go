package registry

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const stripeCount = 64

// stripedLocks serializes writes per id. Ids hashing to the same stripe
// share a mutex; multi-id writers take stripes in ascending order so two
// writers can never wait on each other.
type stripedLocks struct {
	stripes [stripeCount]sync.Mutex
}

func (l *stripedLocks) lock(ids ...string) (unlock func()) {
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		idx = append(idx, int(xxhash.Sum64String(id)%stripeCount))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
