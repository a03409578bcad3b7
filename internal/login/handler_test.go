package login

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/db"
	"github.com/openwcps/wcps-auth/internal/packet"
	"github.com/openwcps/wcps-auth/internal/session"
)

// MockCatalog is a function-field mock for the Catalog interface.
type MockCatalog struct {
	LookupUserFunc        func(ctx context.Context, username string) (*db.UserRecord, error)
	DisplaynameTakenFunc  func(ctx context.Context, displayname string) (bool, error)
	UpdateDisplaynameFunc func(ctx context.Context, username, displayname string) error
}

func (m *MockCatalog) LookupUser(ctx context.Context, username string) (*db.UserRecord, error) {
	if m.LookupUserFunc != nil {
		return m.LookupUserFunc(ctx, username)
	}
	return nil, nil
}

func (m *MockCatalog) DisplaynameTaken(ctx context.Context, displayname string) (bool, error) {
	if m.DisplaynameTakenFunc != nil {
		return m.DisplaynameTakenFunc(ctx, displayname)
	}
	return false, nil
}

func (m *MockCatalog) UpdateDisplayname(ctx context.Context, username, displayname string) error {
	if m.UpdateDisplaynameFunc != nil {
		return m.UpdateDisplaynameFunc(ctx, username, displayname)
	}
	return nil
}

// captureConn records every write so tests can decode the replies.
type captureConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (c *captureConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *captureConn) Read([]byte) (int, error) { return 0, io.EOF }

func (c *captureConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *captureConn) Sent(t *testing.T) []packet.In {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() == 0 {
		return nil
	}
	packets, err := packet.Decode(c.buf.Bytes(), constants.ClientXorSend)
	require.NoError(t, err)
	return packets
}

func (c *captureConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *captureConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *captureConn) SetDeadline(time.Time) error      { return nil }
func (c *captureConn) SetReadDeadline(time.Time) error  { return nil }
func (c *captureConn) SetWriteDeadline(time.Time) error { return nil }

// fakeNode satisfies session.Node for registry interactions in tests.
type fakeNode struct {
	id string
}

func (n *fakeNode) ID() string                       { return n.id }
func (n *fakeNode) Name() string                     { return n.id }
func (n *fakeNode) Address() string                  { return "10.0.0.1" }
func (n *fakeNode) Port() int                        { return 5340 }
func (n *fakeNode) CurrentPlayers() int              { return 0 }
func (n *fakeNode) ServerType() constants.ServerType { return constants.ServerTypeEntire }

func newTestClient(registry *session.Registry) (*Client, *captureConn) {
	conn := &captureConn{}
	return &Client{conn: conn, ip: "127.0.0.1", registry: registry}, conn
}

// lastReply decodes the final packet the handler sent and returns its
// error code block.
func lastReply(t *testing.T, conn *captureConn) (uint16, int) {
	t.Helper()
	packets := conn.Sent(t)
	require.NotEmpty(t, packets, "expected at least one reply")
	last := packets[len(packets)-1]
	code, err := last.BlockInt(0)
	require.NoError(t, err)
	return last.ID, code
}

func serverListPacket(username, password string) *packet.In {
	return &packet.In{
		ID:     constants.PacketServerList,
		Blocks: []string{"0", "0", username, password},
	}
}

func testUser(username, password, displayname string, rights int) *db.UserRecord {
	const salt = "af9f64e7"
	return &db.UserRecord{
		Username:     username,
		Displayname:  displayname,
		PasswordHash: db.HashPassword(password, salt),
		Salt:         salt,
		Rights:       rights,
	}
}

func TestHandleLauncher(t *testing.T) {
	registry := session.NewRegistry()
	handler := NewHandler(&MockCatalog{}, registry)
	client, conn := newTestClient(registry)

	handler.handleLauncher(context.Background(), client, &packet.In{ID: constants.PacketLauncher})

	id, code := lastReply(t, conn)
	assert.Equal(t, constants.PacketLauncher, id)
	assert.Equal(t, 0, code)
	assert.False(t, conn.Closed(), "launcher reply keeps the connection open")
}

func TestHandleServerList_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"short username", "ab", "secret1", constants.ErrEnterIDError},
		{"non alphanumeric username", "al!ce", "secret1", constants.ErrEnterIDError},
		{"empty username", "", "secret1", constants.ErrEnterIDError},
		{"short password", "alice", "ab", constants.ErrEnterPasswordError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := session.NewRegistry()
			handler := NewHandler(&MockCatalog{}, registry)
			client, conn := newTestClient(registry)

			handler.handleServerList(context.Background(), client, serverListPacket(tt.username, tt.password))

			_, code := lastReply(t, conn)
			assert.Equal(t, tt.want, code)
			assert.True(t, conn.Closed())
			assert.False(t, registry.IsUserAuthorized(tt.username))
		})
	}
}

func TestHandleServerList_UnknownUser(t *testing.T) {
	registry := session.NewRegistry()
	handler := NewHandler(&MockCatalog{}, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("nosuch", "secret1"))

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrWrongUser, code)
	assert.True(t, conn.Closed())
}

func TestHandleServerList_WrongPassword(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("alice", "secret1", "Alice", 1), nil
		},
	}
	handler := NewHandler(catalog, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("alice", "wrongpw"))

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrWrongPW, code)
	assert.True(t, conn.Closed())
	assert.False(t, registry.IsUserAuthorized("alice"))
}

func TestHandleServerList_Banned(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("alice", "secret1", "Alice", 0), nil
		},
	}
	handler := NewHandler(catalog, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("alice", "secret1"))

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrBanned, code)
	assert.True(t, conn.Closed())
}

func TestHandleServerList_Success(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("alice", "secret1", "Alice", 3), nil
		},
	}
	handler := NewHandler(catalog, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("alice", "secret1"))

	id, code := lastReply(t, conn)
	assert.Equal(t, constants.PacketServerList, id)
	assert.Equal(t, constants.ErrSuccess, code)
	assert.True(t, conn.Closed(), "success reply closes the socket")

	// The session outlives the socket: the game server validates it later.
	assert.True(t, registry.IsUserAuthorized("alice"))
	sid, ok := registry.UserSessionID("alice")
	require.True(t, ok)
	assert.Equal(t, client.SessionID(), sid)
	assert.False(t, registry.IsUserSessionActivated(sid))

	// Identity blocks of the reply.
	packets := conn.Sent(t)
	last := packets[len(packets)-1]
	assert.Equal(t, "alice", last.Block(3))
	assert.Equal(t, "Alice", last.Block(5))
}

func TestHandleServerList_DuplicateActiveLogin(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("alice", "secret1", "Alice", 1), nil
		},
	}
	handler := NewHandler(catalog, registry)

	first, _ := newTestClient(registry)
	handler.handleServerList(context.Background(), first, serverListPacket("alice", "secret1"))
	nodeSID := registry.AuthorizeNode(&fakeNode{id: "alpha1"})
	require.True(t, registry.ActivateUserSession(first.SessionID(), nodeSID))

	second, conn := newTestClient(registry)
	handler.handleServerList(context.Background(), second, serverListPacket("alice", "secret1"))

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrAlreadyLoggedIn, code)
	assert.True(t, conn.Closed())

	// First session is untouched.
	sid, ok := registry.UserSessionID("alice")
	require.True(t, ok)
	assert.Equal(t, first.SessionID(), sid)
}

func TestHandleServerList_ReplacesInactiveSession(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("alice", "secret1", "Alice", 1), nil
		},
	}
	handler := NewHandler(catalog, registry)

	first, _ := newTestClient(registry)
	handler.handleServerList(context.Background(), first, serverListPacket("alice", "secret1"))
	firstSID := first.SessionID()

	// Re-login before any game server activated the session: the old
	// session is replaced with a fresh id.
	second, conn := newTestClient(registry)
	handler.handleServerList(context.Background(), second, serverListPacket("alice", "secret1"))

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrSuccess, code)

	sid, ok := registry.UserSessionID("alice")
	require.True(t, ok)
	assert.Equal(t, second.SessionID(), sid)
	assert.NotEqual(t, firstSID, sid)
}

func TestHandleServerList_NewNicknamePrompt(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("bob", "secret1", "", 1), nil
		},
	}
	handler := NewHandler(catalog, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("bob", "secret1"))

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrNewNickname, code)
	assert.False(t, conn.Closed(), "nickname prompt keeps the connection open")
	assert.True(t, client.Authorized())
	assert.True(t, registry.IsUserAuthorized("bob"))
}

func TestHandleSetNickname_Unauthorized(t *testing.T) {
	registry := session.NewRegistry()
	handler := NewHandler(&MockCatalog{}, registry)
	client, conn := newTestClient(registry)

	handler.handleSetNickname(context.Background(), client, &packet.In{
		ID:     constants.PacketSetNickname,
		Blocks: []string{"Rogue"},
	})

	assert.Empty(t, conn.Sent(t), "no reply for unauthorized sender")
	assert.True(t, conn.Closed())
}

func TestHandleSetNickname_Validation(t *testing.T) {
	tests := []struct {
		name     string
		nickname string
		taken    bool
		want     int
	}{
		{"too short", "Bob", false, constants.ErrIllegalNickname},
		{"non alphanumeric", "Bob!Bob", false, constants.ErrIllegalNickname},
		{"too long", "Abcdefghijklmnopq", false, constants.ErrNicknameTooLong},
		{"taken", "Alice", true, constants.ErrNicknameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := session.NewRegistry()
			catalog := &MockCatalog{
				LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
					return testUser("bob", "secret1", "", 1), nil
				},
				DisplaynameTakenFunc: func(_ context.Context, _ string) (bool, error) {
					return tt.taken, nil
				},
			}
			handler := NewHandler(catalog, registry)
			client, conn := newTestClient(registry)

			handler.handleServerList(context.Background(), client, serverListPacket("bob", "secret1"))
			handler.handleSetNickname(context.Background(), client, &packet.In{
				ID:     constants.PacketSetNickname,
				Blocks: []string{tt.nickname},
			})

			_, code := lastReply(t, conn)
			assert.Equal(t, tt.want, code)
			assert.False(t, conn.Closed(), "rejected nickname keeps the connection open")
		})
	}
}

func TestHandleSetNickname_Success(t *testing.T) {
	registry := session.NewRegistry()
	var persisted string
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("bob", "secret1", "", 1), nil
		},
		UpdateDisplaynameFunc: func(_ context.Context, _, displayname string) error {
			persisted = displayname
			return nil
		},
	}
	handler := NewHandler(catalog, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("bob", "secret1"))
	handler.handleSetNickname(context.Background(), client, &packet.In{
		ID:     constants.PacketSetNickname,
		Blocks: []string{"Rogue"},
	})

	id, code := lastReply(t, conn)
	assert.Equal(t, constants.PacketServerList, id)
	assert.Equal(t, constants.ErrSuccess, code)
	assert.True(t, conn.Closed())
	assert.Equal(t, "Rogue", persisted)
	assert.Equal(t, "Rogue", client.Displayname())
	assert.True(t, registry.IsUserAuthorized("bob"))
}

func TestHandleSetNickname_PersistenceFailure(t *testing.T) {
	registry := session.NewRegistry()
	catalog := &MockCatalog{
		LookupUserFunc: func(_ context.Context, _ string) (*db.UserRecord, error) {
			return testUser("bob", "secret1", "", 1), nil
		},
		UpdateDisplaynameFunc: func(_ context.Context, _, _ string) error {
			return errors.New("connection reset")
		},
	}
	handler := NewHandler(catalog, registry)
	client, conn := newTestClient(registry)

	handler.handleServerList(context.Background(), client, serverListPacket("bob", "secret1"))
	handler.handleSetNickname(context.Background(), client, &packet.In{
		ID:     constants.PacketSetNickname,
		Blocks: []string{"Rogue"},
	})

	_, code := lastReply(t, conn)
	assert.Equal(t, constants.ErrErrorNickname, code)
	assert.False(t, conn.Closed(), "persistence failure keeps the connection open for a retry")
	assert.Empty(t, client.Displayname(), "local nickname stays unset when the catalog write fails")
}

func TestAlnum(t *testing.T) {
	assert.True(t, alnum("abc123XYZ"))
	assert.False(t, alnum(""))
	assert.False(t, alnum("abc def"))
	assert.False(t, alnum("abc_def"))
	assert.False(t, alnum("héllo"))
}
