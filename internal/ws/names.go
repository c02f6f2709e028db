package ws

import "sync"

// names tracks which live connection owns each username, so two sockets can
// never play as the same player at once.
type names struct {
	mu     sync.Mutex
	byName map[string]string // username -> connID
}

func newNames() *names {
	return &names{byName: make(map[string]string)}
}

// Claim binds username to connID. A connection re-registering under a new
// name gives up its old one. Returns false when another connection holds the
// name.
func (n *names) Claim(username, connID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if owner, taken := n.byName[username]; taken && owner != connID {
		return false
	}
	for name, owner := range n.byName {
		if owner == connID && name != username {
			delete(n.byName, name)
		}
	}
	n.byName[username] = connID
	return true
}

// Release frees whatever name the connection holds. Called on disconnect.
func (n *names) Release(connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for name, owner := range n.byName {
		if owner == connID {
			delete(n.byName, name)
		}
	}
}
