package gslistener

import (
	"context"
	"log/slog"

	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/db"
	"github.com/openwcps/wcps-auth/internal/gslistener/serverpackets"
	"github.com/openwcps/wcps-auth/internal/packet"
	"github.com/openwcps/wcps-auth/internal/session"
)

// HandlerFunc is one protocol-specific state transition for an
// internal-channel packet.
type HandlerFunc func(ctx context.Context, node *Node, pkt *packet.In)

// Handler holds the packet id → handler mapping for the internal port.
type Handler struct {
	catalog  Catalog
	registry *session.Registry
	handlers map[uint16]HandlerFunc
}

// NewHandler builds the handler registry for internal packets.
func NewHandler(catalog Catalog, registry *session.Registry) *Handler {
	h := &Handler{
		catalog:  catalog,
		registry: registry,
	}
	h.handlers = map[uint16]HandlerFunc{
		constants.PacketGameServerAuthentication: h.handleGameServerAuth,
		constants.PacketGameServerStatus:         h.handleGameServerStatus,
		constants.PacketClientAuthentication:     h.handleClientAuth,
	}
	return h
}

// Lookup returns the handler for the packet id.
func (h *Handler) Lookup(id uint16) (HandlerFunc, bool) {
	fn, ok := h.handlers[id]
	return fn, ok
}

// handleGameServerAuth admits a game server node after validating its
// advertised identity against the server catalog.
func (h *Handler) handleGameServerAuth(ctx context.Context, node *Node, pkt *packet.In) {
	code, err := pkt.BlockInt(0)
	if err != nil || code != constants.ErrSuccess {
		slog.Debug("ignoring non-success admission request", "remote", node.IP())
		return
	}

	// Cap check before any validation. No disconnect: a node with a
	// different identity may retry on the same connection later.
	if h.registry.AuthorizedNodeCount() >= constants.MaxNodeSessions {
		slog.Error("node limit reached, rejecting", "remote", node.IP())
		node.Send(serverpackets.GameServerAuthError(constants.ErrServerLimitReached))
		return
	}

	id := pkt.Block(1)
	name := pkt.Block(2)
	address := pkt.Block(3)

	if len(name) < 3 || !alnum(name) {
		slog.Error("invalid node name", "id", id, "name", name, "remote", node.IP())
		node.Send(serverpackets.GameServerAuthError(constants.ErrServerErrorOther))
		node.Disconnect()
		return
	}
	if id == "" || !alnum(id) {
		slog.Error("invalid node id", "id", id, "remote", node.IP())
		node.Send(serverpackets.GameServerAuthError(constants.ErrServerErrorOther))
		node.Disconnect()
		return
	}

	port, portErr := pkt.BlockInt(4)
	currentPlayers, curErr := pkt.BlockInt(6)
	maxPlayers, maxErr := pkt.BlockInt(7)
	if portErr != nil || curErr != nil || maxErr != nil {
		slog.Error("invalid numeric admission field", "id", id, "remote", node.IP())
		node.Send(serverpackets.GameServerAuthError(constants.ErrServerErrorOther))
		node.Disconnect()
		return
	}

	serverType, typeErr := pkt.BlockInt(5)
	if typeErr != nil || !constants.ServerType(serverType).Valid() {
		slog.Error("invalid server type", "id", id, "type", pkt.Block(5), "remote", node.IP())
		node.Send(serverpackets.GameServerAuthError(constants.ErrInvalidServerType))
		node.Disconnect()
		return
	}

	registered, err := h.catalog.ListActiveServers(ctx)
	if err != nil {
		slog.Error("server catalog lookup failed", "err", err)
		node.Send(serverpackets.GameServerAuthError(constants.ErrServerErrorOther))
		node.Disconnect()
		return
	}
	if !endpointRegistered(registered, id, address, port) {
		slog.Error("unregistered node", "id", id, "address", address, "port", port)
		node.Send(serverpackets.GameServerAuthError(constants.ErrInvalidSessionMatch))
		node.Disconnect()
		return
	}

	if h.registry.IsNodeAuthorized(id) {
		slog.Info("node already registered", "id", id, "remote", node.IP())
		node.Send(serverpackets.GameServerAuthError(constants.ErrAlreadyAuthorized))
		node.Disconnect()
		return
	}

	node.SetEndpoint(address, port)
	node.Authorize(id, name, constants.ServerType(serverType), currentPlayers, maxPlayers)
	node.Send(serverpackets.GameServerAuthSuccess(node.SessionID()))
	slog.Info("node authenticated",
		"id", id,
		"name", name,
		"endpoint", address,
		"port", port,
		"sessionId", node.SessionID(),
	)
}

// handleGameServerStatus applies a heartbeat from an admitted node.
func (h *Handler) handleGameServerStatus(_ context.Context, node *Node, pkt *packet.In) {
	if !node.Authorized() {
		slog.Info("heartbeat from unauthorized node ignored", "remote", node.IP())
		node.Disconnect()
		return
	}

	currentPlayers, err := pkt.BlockInt(3)
	if err != nil {
		slog.Info("malformed heartbeat", "node", node.ID(), "err", err)
		return
	}
	node.SetCurrentPlayers(currentPlayers)
}

// handleClientAuth adjudicates a player join reported by an admitted
// node against the session registry.
func (h *Handler) handleClientAuth(_ context.Context, node *Node, pkt *packet.In) {
	if !node.Authorized() {
		slog.Info("join adjudication from unauthorized node", "remote", node.IP())
		node.Disconnect()
		return
	}

	code, codeErr := pkt.BlockInt(0)
	claimedSID, sidErr := pkt.BlockInt(1)
	claimedUser := pkt.Block(2)
	claimedRights, rightsErr := pkt.BlockInt(3)
	if codeErr != nil || sidErr != nil || rightsErr != nil {
		slog.Info("malformed join adjudication", "node", node.ID(), "remote", node.IP())
		node.Disconnect()
		return
	}

	verdict := constants.ErrInvalidKeySession

	if h.registry.IsUserAuthorized(claimedUser) {
		storedSID, _ := h.registry.UserSessionID(claimedUser)
		active := h.registry.IsUserSessionActivated(storedSID)

		switch {
		case int16(claimedSID) != storedSID:
			verdict = constants.ErrInvalidSessionMatch
		case active:
			if code == constants.ErrEndConnection {
				// The node reports the player left; release the session
				// with no reply.
				h.registry.UnauthorizeUser(claimedUser)
				slog.Info("user session released", "username", claimedUser, "node", node.ID())
				return
			}
			verdict = constants.ErrAlreadyAuthorized
		default:
			h.registry.ActivateUserSession(storedSID, node.SessionID())
			verdict = constants.ErrSuccess
			slog.Info("user session activated", "username", claimedUser, "sessionId", storedSID, "node", node.ID())
		}
	}

	node.Send(serverpackets.ClientAuth(verdict, claimedUser, claimedSID, claimedRights))
}

// endpointRegistered reports whether the advertised (id, address, port)
// triple matches a catalog row exactly.
func endpointRegistered(registered []db.ServerRecord, id, address string, port int) bool {
	for _, srv := range registered {
		if srv.NodeID == id && srv.Address == address && srv.Port == port {
			return true
		}
	}
	return false
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
