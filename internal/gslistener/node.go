package gslistener

import (
	"log/slog"
	"net"
	"sync"

	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/session"
)

// Node represents a single game server connection on the internal port.
type Node struct {
	conn     net.Conn
	ip       string
	registry *session.Registry

	closeOnce sync.Once

	mu             sync.Mutex
	id             string
	name           string
	address        string
	port           int
	serverType     constants.ServerType
	currentPlayers int
	maxPlayers     int
	sessionID      string
	authorized     bool
}

// NewNode creates the node state for the given connection.
func NewNode(conn net.Conn, registry *session.Registry) *Node {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	return &Node{
		conn:     conn,
		ip:       host,
		registry: registry,
	}
}

// IP returns the node's remote IP address.
func (n *Node) IP() string {
	return n.ip
}

// ID returns the catalog server id ("" before authorize).
func (n *Node) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// Name returns the advertised server name.
func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// Address returns the advertised address game clients connect to.
func (n *Node) Address() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.address
}

// Port returns the advertised game port.
func (n *Node) Port() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.port
}

// ServerType returns the advertised server classification.
func (n *Node) ServerType() constants.ServerType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.serverType
}

// CurrentPlayers returns the last reported player count.
func (n *Node) CurrentPlayers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentPlayers
}

// MaxPlayers returns the advertised capacity.
func (n *Node) MaxPlayers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.maxPlayers
}

// SessionID returns the opaque session id obtained at authorization.
func (n *Node) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

// Authorized reports whether the node passed the admission exchange.
func (n *Node) Authorized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authorized
}

// SetEndpoint records the advertised address and port.
func (n *Node) SetEndpoint(address string, port int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.address = address
	n.port = port
}

// SetCurrentPlayers updates the cached player count from a heartbeat.
// Values outside [0, maxPlayers] are ignored.
func (n *Node) SetCurrentPlayers(players int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if players < 0 || players > n.maxPlayers {
		slog.Info("ignoring out-of-range player count", "node", n.id, "players", players, "max", n.maxPlayers)
		return
	}
	n.currentPlayers = players
}

// Authorize marks the node admitted and obtains a session id from the
// registry. maxPlayers is clamped to the protocol cap.
func (n *Node) Authorize(id, name string, serverType constants.ServerType, currentPlayers, maxPlayers int) {
	if maxPlayers < 0 {
		maxPlayers = 0
	}
	if maxPlayers > constants.MaxPlayersCap {
		maxPlayers = constants.MaxPlayersCap
	}
	if currentPlayers < 0 {
		currentPlayers = 0
	}
	if currentPlayers > maxPlayers {
		currentPlayers = maxPlayers
	}

	n.mu.Lock()
	n.id = id
	n.name = name
	n.serverType = serverType
	n.currentPlayers = currentPlayers
	n.maxPlayers = maxPlayers
	n.mu.Unlock()

	sid := n.registry.AuthorizeNode(n)

	n.mu.Lock()
	n.sessionID = sid
	n.authorized = true
	n.mu.Unlock()
}

// Send writes a built packet to the transport. A write failure is
// logged and disconnects, never re-raised to the caller.
func (n *Node) Send(buf []byte) {
	n.mu.Lock()
	_, err := n.conn.Write(buf)
	n.mu.Unlock()
	if err != nil {
		slog.Error("node send failed", "node", n.ID(), "remote", n.ip, "err", err)
		n.Disconnect()
	}
}

// Disconnect closes the transport and, if the node was admitted,
// revokes its session. The registry revocation runs before the local
// flag is cleared so the cascade still sees the node.
func (n *Node) Disconnect() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		authorized := n.authorized
		id := n.id
		n.mu.Unlock()

		if authorized {
			n.registry.UnauthorizeNode(id)
			slog.Info("node session revoked", "node", id, "remote", n.ip)
		}

		n.mu.Lock()
		n.authorized = false
		n.mu.Unlock()

		n.conn.Close()
	})
}
