package login

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/openwcps/wcps-auth/internal/session"
)

// Client represents a single game client connection on the auth port.
type Client struct {
	conn     net.Conn
	ip       string
	registry *session.Registry

	closeOnce sync.Once

	mu          sync.Mutex
	username    string
	displayname string
	rights      int
	sessionID   int16
	authorized  bool
}

// NewClient creates the client state for the given connection.
func NewClient(conn net.Conn, registry *session.Registry) *Client {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	return &Client{
		conn:     conn,
		ip:       host,
		registry: registry,
	}
}

// IP returns the client's remote IP address.
func (c *Client) IP() string {
	return c.ip
}

// Username returns the authorized account name ("" before authorize).
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Displayname returns the player's nickname (may be empty until the
// first-time nickname is set).
func (c *Client) Displayname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayname
}

// Rights returns the access level from the catalog.
func (c *Client) Rights() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rights
}

// SessionID returns the session id obtained at authorization.
func (c *Client) SessionID() int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Authorized reports whether the login exchange completed.
func (c *Client) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

// Authorize marks the client authorized and obtains a session id from
// the registry.
func (c *Client) Authorize(username, displayname string, rights int) error {
	c.mu.Lock()
	c.username = username
	c.displayname = displayname
	c.rights = rights
	c.mu.Unlock()

	sid, err := c.registry.AuthorizeUser(c)
	if err != nil {
		return fmt.Errorf("authorizing %q: %w", username, err)
	}

	c.mu.Lock()
	c.sessionID = sid
	c.authorized = true
	c.mu.Unlock()
	return nil
}

// UpdateDisplayname mutates the local nickname. The registry holds a
// reference to this client, so a live session observes the change.
func (c *Client) UpdateDisplayname(displayname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayname = displayname
}

// Send writes a built packet to the transport. A write failure is
// logged and disconnects, never re-raised to the caller.
func (c *Client) Send(buf []byte) {
	c.mu.Lock()
	_, err := c.conn.Write(buf)
	c.mu.Unlock()
	if err != nil {
		slog.Error("client send failed", "remote", c.ip, "err", err)
		c.Disconnect()
	}
}

// Disconnect closes the transport. Idempotent. The user session, if
// any, survives the socket: the client is expected to reconnect to the
// chosen game server, which validates the session over the internal
// channel.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
