package login

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/db"
	"github.com/openwcps/wcps-auth/internal/login/serverpackets"
	"github.com/openwcps/wcps-auth/internal/packet"
	"github.com/openwcps/wcps-auth/internal/session"
)

// HandlerFunc is one protocol-specific state transition for a client
// packet. Handlers are the only mutators of a client's authorization
// state.
type HandlerFunc func(ctx context.Context, client *Client, pkt *packet.In)

// Handler holds the packet id → handler mapping for the client port.
type Handler struct {
	catalog  Catalog
	registry *session.Registry
	handlers map[uint16]HandlerFunc
}

// NewHandler builds the handler registry for client packets.
func NewHandler(catalog Catalog, registry *session.Registry) *Handler {
	h := &Handler{
		catalog:  catalog,
		registry: registry,
	}
	h.handlers = map[uint16]HandlerFunc{
		constants.PacketLauncher:    h.handleLauncher,
		constants.PacketServerList:  h.handleServerList,
		constants.PacketSetNickname: h.handleSetNickname,
	}
	return h
}

// Lookup returns the handler for the packet id.
func (h *Handler) Lookup(id uint16) (HandlerFunc, bool) {
	fn, ok := h.handlers[id]
	return fn, ok
}

// handleLauncher answers a freshly connected launcher probe. No state
// change.
func (h *Handler) handleLauncher(_ context.Context, client *Client, _ *packet.In) {
	client.Send(serverpackets.Launcher())
}

// handleServerList runs the login exchange: credential validation,
// session reconciliation and the server list reply.
func (h *Handler) handleServerList(ctx context.Context, client *Client, pkt *packet.In) {
	username := pkt.Block(2)
	password := pkt.Block(3)

	if len(username) < 3 || !alnum(username) {
		client.Send(serverpackets.ServerListError(constants.ErrEnterIDError))
		client.Disconnect()
		return
	}
	if len(password) < 3 {
		client.Send(serverpackets.ServerListError(constants.ErrEnterPasswordError))
		client.Disconnect()
		return
	}

	user, err := h.catalog.LookupUser(ctx, username)
	if err != nil {
		slog.Error("catalog lookup failed", "username", username, "err", err)
		client.Send(serverpackets.ServerListError(constants.ErrIllegalException))
		client.Disconnect()
		return
	}
	if user == nil {
		client.Send(serverpackets.ServerListError(constants.ErrWrongUser))
		client.Disconnect()
		return
	}

	hashed := db.HashPassword(password, user.Salt)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(user.PasswordHash)) != 1 {
		slog.Info("wrong password", "username", user.Username, "remote", client.IP())
		client.Send(serverpackets.ServerListError(constants.ErrWrongPW))
		client.Disconnect()
		return
	}

	if user.Rights == 0 {
		slog.Info("banned user rejected", "username", user.Username, "remote", client.IP())
		client.Send(serverpackets.ServerListError(constants.ErrBanned))
		client.Disconnect()
		return
	}

	existing := h.registry.IsUserAuthorized(user.Username)
	sid, _ := h.registry.UserSessionID(user.Username)
	active := h.registry.IsUserSessionActivated(sid)

	// A session that was never activated models a player who backed out
	// of the server selection (or was rejected by a game server) and is
	// back at the login: replace it without a user-visible error.
	if existing && active {
		slog.Info("duplicate login refused", "username", user.Username, "remote", client.IP())
		client.Send(serverpackets.ServerListError(constants.ErrAlreadyLoggedIn))
		client.Disconnect()
		return
	}
	if existing {
		h.registry.UnauthorizeUser(user.Username)
	}

	if err := client.Authorize(user.Username, user.Displayname, user.Rights); err != nil {
		// Session id space exhausted. Should be unreachable.
		slog.Error("authorize failed", "username", user.Username, "err", err)
		client.Send(serverpackets.ServerListError(constants.ErrIllegalException))
		client.Disconnect()
		return
	}

	if client.Displayname() == "" {
		// Prompt the client for a first-time nickname; the connection
		// stays open for the SetNickname packet.
		client.Send(serverpackets.ServerListError(constants.ErrNewNickname))
		return
	}

	slog.Info("login success", "username", user.Username, "sessionId", client.SessionID(), "remote", client.IP())
	client.Send(serverpackets.ServerListSuccess(
		client.Username(),
		client.Displayname(),
		client.SessionID(),
		client.Rights(),
		h.registry.SnapshotAuthorizedNodes(),
	))
	client.Disconnect()
}

// handleSetNickname sets a first-time nickname and completes the login
// exchange with the full server list reply.
func (h *Handler) handleSetNickname(ctx context.Context, client *Client, pkt *packet.In) {
	if !client.Authorized() {
		slog.Info("SetNickname from unauthorized client", "remote", client.IP())
		client.Disconnect()
		return
	}

	nickname := pkt.Block(0)

	if len(nickname) <= 3 || !alnum(nickname) {
		client.Send(serverpackets.ServerListError(constants.ErrIllegalNickname))
		return
	}
	if len(nickname) > 16 {
		client.Send(serverpackets.ServerListError(constants.ErrNicknameTooLong))
		return
	}

	taken, err := h.catalog.DisplaynameTaken(ctx, nickname)
	if err != nil {
		slog.Error("displayname check failed", "nickname", nickname, "err", err)
		client.Send(serverpackets.ServerListError(constants.ErrErrorNickname))
		return
	}
	if taken {
		client.Send(serverpackets.ServerListError(constants.ErrNicknameTaken))
		return
	}

	if err := h.catalog.UpdateDisplayname(ctx, client.Username(), nickname); err != nil {
		slog.Error("displayname update failed", "username", client.Username(), "err", err)
		client.Send(serverpackets.ServerListError(constants.ErrErrorNickname))
		return
	}
	client.UpdateDisplayname(nickname)

	slog.Info("nickname set", "username", client.Username(), "nickname", nickname)
	client.Send(serverpackets.ServerListSuccess(
		client.Username(),
		client.Displayname(),
		client.SessionID(),
		client.Rights(),
		h.registry.SnapshotAuthorizedNodes(),
	))
	client.Disconnect()
}

// alnum reports whether s is non-empty ASCII letters and digits only.
func alnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
