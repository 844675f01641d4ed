package chain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// senderLocks hands out one mutex per sending account. Entries are reference
// counted and dropped once no caller holds or waits on them.
type senderLocks struct {
	mu    sync.Mutex
	locks map[common.Address]*senderLock
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

func newSenderLocks() *senderLocks {
	return &senderLocks{locks: make(map[common.Address]*senderLock)}
}

// Lock blocks until addr is free and returns the matching unlock func.
func (s *senderLocks) Lock(addr common.Address) func() {
	s.mu.Lock()
	l, ok := s.locks[addr]
	if !ok {
		l = &senderLock{}
		s.locks[addr] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, addr)
		}
		s.mu.Unlock()
	}
}

func (s *senderLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// nonceTracker remembers the next nonce after each accepted broadcast so a
// node whose pending pool lags behind cannot hand out a nonce twice.
type nonceTracker struct {
	mu   sync.Mutex
	next map[common.Address]uint64
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{next: make(map[common.Address]uint64)}
}

// Pick returns max(pending, locally known next).
func (n *nonceTracker) Pick(addr common.Address, pending uint64) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if local, ok := n.next[addr]; ok && local > pending {
		return local
	}
	return pending
}

func (n *nonceTracker) Accepted(addr common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nonce+1 > n.next[addr] {
		n.next[addr] = nonce + 1
	}
}

// Forget drops local knowledge so the next pick trusts the node again.
func (n *nonceTracker) Forget(addr common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.next, addr)
}
