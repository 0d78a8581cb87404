package room

import (
	"sync"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
)

// Registry holds peer presence, the chat log and the moderation lists. All
// writes arrive through the session dispatch point; the lock exists for
// concurrent readers (diagnostics, tests).
type Registry struct {
	mu        sync.RWMutex
	peers     []core.PeerState
	index     map[core.PeerID]int
	chat      []core.ChatMessage
	blacklist map[core.PeerID]core.BlockedUser
	awaiting  []core.PeerID
	joining   []core.PeerID
}

func NewRegistry() *Registry {
	return &Registry{
		index:     make(map[core.PeerID]int),
		blacklist: make(map[core.PeerID]core.BlockedUser),
	}
}

// UpsertPeer replaces the entry for the peer's UID if present, inserts it
// otherwise. At most one entry per UID exists.
func (r *Registry) UpsertPeer(state core.PeerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[state.UID]; ok {
		r.peers[i] = state
		return
	}
	r.index[state.UID] = len(r.peers)
	r.peers = append(r.peers, state)
}

// RemovePeer deletes the peer-state entry and reports whether it existed.
func (r *Registry) RemovePeer(uid core.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[uid]
	if !ok {
		return false
	}
	r.peers = append(r.peers[:i], r.peers[i+1:]...)
	delete(r.index, uid)
	for j := i; j < len(r.peers); j++ {
		r.index[r.peers[j].UID] = j
	}
	return true
}

func (r *Registry) Peer(uid core.PeerID) (core.PeerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[uid]
	if !ok {
		return core.PeerState{}, false
	}
	return r.peers[i], true
}

func (r *Registry) Peers() []core.PeerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.PeerState(nil), r.peers...)
}

func (r *Registry) SeedPeers(states []core.PeerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append([]core.PeerState(nil), states...)
	r.index = make(map[core.PeerID]int, len(states))
	for i, s := range states {
		r.index[s.UID] = i
	}
}

// AppendChat appends in local receipt order. Identity is server-assigned; no
// deduplication happens here.
func (r *Registry) AppendChat(msg core.ChatMessage) {
	r.mu.Lock()
	r.chat = append(r.chat, msg)
	r.mu.Unlock()
}

func (r *Registry) Chat() []core.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.ChatMessage(nil), r.chat...)
}

func (r *Registry) SetAwaiting(ids []core.PeerID) {
	r.mu.Lock()
	r.awaiting = append([]core.PeerID(nil), ids...)
	r.mu.Unlock()
}

func (r *Registry) AddAwaiting(id core.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.awaiting {
		if existing == id {
			return
		}
	}
	r.awaiting = append(r.awaiting, id)
}

func (r *Registry) InAwaiting(id core.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.awaiting {
		if existing == id {
			return true
		}
	}
	return false
}

func (r *Registry) RemoveAwaiting(id core.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.awaiting {
		if existing == id {
			r.awaiting = append(r.awaiting[:i], r.awaiting[i+1:]...)
			return
		}
	}
}

func (r *Registry) Awaiting() []core.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.PeerID(nil), r.awaiting...)
}

func (r *Registry) SetJoining(ids []core.PeerID) {
	r.mu.Lock()
	r.joining = append([]core.PeerID(nil), ids...)
	r.mu.Unlock()
}

func (r *Registry) Joining() []core.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.PeerID(nil), r.joining...)
}

func (r *Registry) Block(user core.BlockedUser) {
	r.mu.Lock()
	r.blacklist[user.ID] = user
	r.mu.Unlock()
}

func (r *Registry) Unblock(id core.PeerID) {
	r.mu.Lock()
	delete(r.blacklist, id)
	r.mu.Unlock()
}

func (r *Registry) IsBlocked(id core.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blacklist[id]
	return ok
}

func (r *Registry) Blacklist() []core.BlockedUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]core.BlockedUser, 0, len(r.blacklist))
	for _, u := range r.blacklist {
		list = append(list, u)
	}
	return list
}

func (r *Registry) SeedBlacklist(users []core.BlockedUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blacklist = make(map[core.PeerID]core.BlockedUser, len(users))
	for _, u := range users {
		r.blacklist[u.ID] = u
	}
}

// Reset clears everything except the blacklist, which survives a trip back
// to the waiting room.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = nil
	r.index = make(map[core.PeerID]int)
	r.chat = nil
	r.awaiting = nil
	r.joining = nil
}
