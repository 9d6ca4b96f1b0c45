package classifier

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
)

const shardCount = 64

// entry guards one profile. evicted is set under mu when the entry leaves
// the hot set so holders of a stale pointer retry the lookup. enforcing
// orders the enforcer calls of one source and is never taken while holding mu.
type entry struct {
	enforcing sync.Mutex
	mu        sync.Mutex
	profile   *profile.AttackerProfile
	evicted   bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type profileStore struct {
	shards [shardCount]*shard
}

func newProfileStore() *profileStore {
	s := &profileStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

func (s *profileStore) shard(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return s.shards[h.Sum32()%shardCount]
}

func (s *profileStore) get(sourceID string) (*entry, bool) {
	sh := s.shard(sourceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[sourceID]
	return e, ok
}

// getOrInsert returns the existing entry or stores the one built by create.
func (s *profileStore) getOrInsert(sourceID string, create func() *profile.AttackerProfile) *entry {
	sh := s.shard(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[sourceID]; ok {
		return e
	}
	e := &entry{profile: create()}
	sh.entries[sourceID] = e
	return e
}

// each visits every entry without holding a shard lock during fn.
func (s *profileStore) each(fn func(sourceID string, e *entry)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		entries := make(map[string]*entry, len(sh.entries))
		for id, e := range sh.entries {
			entries[id] = e
		}
		sh.mu.RUnlock()
		for id, e := range entries {
			fn(id, e)
		}
	}
}

// evict removes the entry when it is idle and holds nothing active. The
// caller must hold e.mu.
func (s *profileStore) evict(sourceID string, e *entry) {
	sh := s.shard(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if current, ok := sh.entries[sourceID]; ok && current == e {
		delete(sh.entries, sourceID)
		e.evicted = true
	}
}

func (s *profileStore) size() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func evictable(p *profile.AttackerProfile, now time.Time, idle time.Duration) bool {
	return p.State == profile.StateClean &&
		len(p.ActiveCountermeasures) == 0 &&
		now.Sub(p.LastSeen) >= idle
}
