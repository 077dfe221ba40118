// Package history keeps the bounded in-memory record of messages the engine
// has already seen.
package history

import (
	"sync"

	"Aide/pkg/monitor"
)

// DefaultCapacity is the message ring size.
const DefaultCapacity = 100

// Store is a ring of accepted messages plus a larger fingerprint set. The
// set outlives the ring so stale messages still on screen are rejected
// after they drop out of history.
type Store struct {
	mu sync.Mutex

	capacity int
	ring     []monitor.Message
	head     int // index of the oldest message once the ring is full
	count    int

	seen      map[monitor.Fingerprint]struct{}
	seenOrder []monitor.Fingerprint
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		ring:     make([]monitor.Message, capacity),
		seen:     make(map[monitor.Fingerprint]struct{}, capacity*2),
	}
}

// Admit returns true the first time a fingerprint is offered within the
// retention window and marks it seen.
func (s *Store) Admit(m monitor.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := m.Fingerprint()
	if _, ok := s.seen[fp]; ok {
		return false
	}
	s.seen[fp] = struct{}{}
	s.seenOrder = append(s.seenOrder, fp)

	// batch eviction: drop the oldest half when over 2N
	if len(s.seenOrder) > s.capacity*2 {
		half := len(s.seenOrder) / 2
		for _, old := range s.seenOrder[:half] {
			delete(s.seen, old)
		}
		s.seenOrder = append([]monitor.Fingerprint(nil), s.seenOrder[half:]...)
	}
	return true
}

// Record appends m to the ring, evicting the oldest message when full.
func (s *Store) Record(m monitor.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count < s.capacity {
		s.ring[(s.head+s.count)%s.capacity] = m
		s.count++
		return
	}
	s.ring[s.head] = m
	s.head = (s.head + 1) % s.capacity
}

// Recent returns up to n messages, oldest first. n <= 0 returns all.
func (s *Store) Recent(n int) []monitor.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]monitor.Message, 0, n)
	for i := s.count - n; i < s.count; i++ {
		out = append(out, s.ring[(s.head+i)%s.capacity])
	}
	return out
}

// RecentReceived returns the newest message not sent by the owner.
func (s *Store) RecentReceived() (monitor.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := s.count - 1; i >= 0; i-- {
		m := s.ring[(s.head+i)%s.capacity]
		if !m.IsSelf {
			return m, true
		}
	}
	return monitor.Message{}, false
}

// Len is the number of messages held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// SeenLen is the number of fingerprints held.
func (s *Store) SeenLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *Store) Capacity() int { return s.capacity }

// Clear forgets all messages and fingerprints.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = make([]monitor.Message, s.capacity)
	s.head, s.count = 0, 0
	s.seen = make(map[monitor.Fingerprint]struct{}, s.capacity*2)
	s.seenOrder = nil
}
