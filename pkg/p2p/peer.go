package p2p

import (
	"sync"

	"github.com/OccDeser/uniclip/pkg/types"
)

// PeerTable is the ordered set of remote endpoints the node broadcasts to.
// Entries are unique by host and never include the local host. The table's
// mutex is the node's state lock: it is never held across network I/O.
type PeerTable struct {
	local types.Endpoint
	peers []types.Endpoint
	mu    sync.RWMutex
}

// NewPeerTable creates an empty table owned by local
func NewPeerTable(local types.Endpoint) *PeerTable {
	return &PeerTable{
		local: local,
		peers: make([]types.Endpoint, 0),
	}
}

// Upsert inserts ep unless its host is the local host or already known.
// It reports whether the table changed.
func (t *PeerTable) Upsert(ep types.Endpoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insert(ep)
}

// Merge upserts every endpoint in order and returns the ones that were new
func (t *PeerTable) Merge(eps []types.Endpoint) []types.Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added []types.Endpoint
	for _, ep := range eps {
		if t.insert(ep) {
			added = append(added, ep)
		}
	}
	return added
}

// Remove deletes every entry for host and returns how many were dropped
func (t *PeerTable) Remove(host uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.peers[:0]
	for _, p := range t.peers {
		if p.Host != host {
			kept = append(kept, p)
		}
	}
	removed := len(t.peers) - len(kept)
	t.peers = kept
	return removed
}

// Snapshot returns a copy of the table in insertion order
func (t *PeerTable) Snapshot() []types.Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peers := make([]types.Endpoint, len(t.peers))
	copy(peers, t.peers)
	return peers
}

// Contains reports whether host is in the table
func (t *PeerTable) Contains(host uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.indexOf(host) >= 0
}

// Len returns the number of known peers
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Local returns the endpoint the table belongs to
func (t *PeerTable) Local() types.Endpoint {
	return t.local
}

func (t *PeerTable) insert(ep types.Endpoint) bool {
	if ep.Host == t.local.Host || t.indexOf(ep.Host) >= 0 {
		return false
	}
	t.peers = append(t.peers, ep)
	return true
}

func (t *PeerTable) indexOf(host uint32) int {
	for i, p := range t.peers {
		if p.Host == host {
			return i
		}
	}
	return -1
}
