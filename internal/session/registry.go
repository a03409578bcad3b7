// Package session is the single source of truth for who is authorized,
// with which session identifier, and in what phase.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/openwcps/wcps-auth/internal/constants"
)

// ErrNoSessionIDAvailable is returned when all 32768 user session id
// slots are live. Unreachable in practice.
var ErrNoSessionIDAvailable = errors.New("no user session id available")

// User is the capability the registry needs from a client connection.
type User interface {
	Username() string
}

// Node is the capability the registry needs from a game server
// connection. The snapshot getters feed the server list reply.
type Node interface {
	ID() string
	Name() string
	Address() string
	Port() int
	CurrentPlayers() int
	ServerType() constants.ServerType
}

// UserSession tracks one authorized client. A fresh session is inactive;
// activation is the promotion that follows the chosen game server
// confirming the join.
type UserSession struct {
	user      User
	sessionID int16
	activated bool
	boundNode string // node session id, set on activation
}

// NodeSession tracks one authorized game server node.
type NodeSession struct {
	node      Node
	sessionID string
}

// Node returns the underlying node connection.
func (s *NodeSession) Node() Node { return s.node }

// SessionID returns the opaque session identifier assigned to the node.
func (s *NodeSession) SessionID() string { return s.sessionID }

// Registry is the process-wide session store. One mutex guards all
// state; operations are short hashtable work and bounded counter walks,
// so coarse locking is fine. Callers must not hold unrelated locks
// while invoking it.
type Registry struct {
	mu        sync.Mutex
	users     map[string]*UserSession // by username
	bySID     map[int16]*UserSession
	nodes     map[string]*NodeSession // by node id
	nodeOrder []string                // node ids in authorization order
	next      int16                   // rotating session id counter
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*UserSession),
		bySID: make(map[int16]*UserSession),
		nodes: make(map[string]*NodeSession),
	}
}

// AuthorizeUser inserts a session for the user and returns its id. If a
// session already exists for the username, its id is returned unchanged.
// Ids rotate over [0, 32767] and the first free value wins; a full
// sweep without a free slot fails with ErrNoSessionIDAvailable.
func (r *Registry) AuthorizeUser(u User) (int16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.users[u.Username()]; ok {
		return s.sessionID, nil
	}

	for i := 0; i < constants.MaxUserSessions; i++ {
		candidate := r.next
		r.next = int16((int(r.next) + 1) % constants.MaxUserSessions)
		if _, taken := r.bySID[candidate]; taken {
			continue
		}
		s := &UserSession{user: u, sessionID: candidate}
		r.users[u.Username()] = s
		r.bySID[candidate] = s
		return candidate, nil
	}
	return 0, ErrNoSessionIDAvailable
}

// AuthorizeNode inserts a session for the node and returns its opaque
// id. An existing session for the same node id is returned unchanged.
// Ids are random UUIDs; collision probability is negligible, so there
// is no retry logic.
func (r *Registry) AuthorizeNode(n Node) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.nodes[n.ID()]; ok {
		return s.sessionID
	}
	s := &NodeSession{node: n, sessionID: uuid.NewString()}
	r.nodes[n.ID()] = s
	r.nodeOrder = append(r.nodeOrder, n.ID())
	return s.sessionID
}

// UnauthorizeUser removes the user's session. Silent on absent.
func (r *Registry) UnauthorizeUser(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeUser(username)
}

func (r *Registry) removeUser(username string) {
	s, ok := r.users[username]
	if !ok {
		return
	}
	delete(r.users, username)
	delete(r.bySID, s.sessionID)
}

// UnauthorizeNode removes the node's session and, in the same critical
// section, every user session bound to it. When a game server
// disappears, all players it claimed become reauthorizable elsewhere.
// Silent on absent.
func (r *Registry) UnauthorizeNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.nodes[nodeID]
	if !ok {
		return
	}
	delete(r.nodes, nodeID)
	for i, id := range r.nodeOrder {
		if id == nodeID {
			r.nodeOrder = append(r.nodeOrder[:i], r.nodeOrder[i+1:]...)
			break
		}
	}
	for username, us := range r.users {
		if us.activated && us.boundNode == s.sessionID {
			r.removeUser(username)
		}
	}
}

// IsUserAuthorized reports whether a session exists for the username.
func (r *Registry) IsUserAuthorized(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[username]
	return ok
}

// IsNodeAuthorized reports whether a session exists for the node id.
func (r *Registry) IsNodeAuthorized(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[nodeID]
	return ok
}

// UserSessionID returns the session id for the username.
func (r *Registry) UserSessionID(username string) (int16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.users[username]
	if !ok {
		return 0, false
	}
	return s.sessionID, true
}

// NodeSessionID returns the session id for the node id.
func (r *Registry) NodeSessionID(nodeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.nodes[nodeID]
	if !ok {
		return "", false
	}
	return s.sessionID, true
}

// UserBySessionID returns the client behind the session id.
func (r *Registry) UserBySessionID(id int16) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bySID[id]
	if !ok {
		return nil, false
	}
	return s.user, true
}

// ActivateUserSession marks the session active and records which node
// session it is bound to. Reports whether a matching session existed.
func (r *Registry) ActivateUserSession(id int16, nodeSessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bySID[id]
	if !ok {
		return false
	}
	s.activated = true
	s.boundNode = nodeSessionID
	return true
}

// IsUserSessionActivated reports whether the session id is live and
// activated.
func (r *Registry) IsUserSessionActivated(id int16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bySID[id]
	return ok && s.activated
}

// AuthorizedUserCount returns the number of live user sessions.
func (r *Registry) AuthorizedUserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// AuthorizedNodeCount returns the number of live node sessions.
func (r *Registry) AuthorizedNodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// SnapshotAuthorizedNodes returns the live nodes in authorization
// order, for inclusion in server list replies.
func (r *Registry) SnapshotAuthorizedNodes() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes := make([]Node, 0, len(r.nodeOrder))
	for _, id := range r.nodeOrder {
		if s, ok := r.nodes[id]; ok {
			nodes = append(nodes, s.node)
		}
	}
	return nodes
}
