package serverpackets

import (
	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/packet"
	"github.com/openwcps/wcps-auth/internal/session"
)

// ServerListError builds a ServerList reply carrying only an error code.
func ServerListError(code int) []byte {
	return packet.NewOut(constants.PacketServerList, constants.ClientXorSend).
		AppendInt(code).
		Build()
}

// ServerListSuccess builds the full login success reply: the user's
// identity and session id followed by the snapshot of authorized game
// servers.
func ServerListSuccess(username, displayname string, sessionID int16, rights int, nodes []session.Node) []byte {
	out := packet.NewOut(constants.PacketServerList, constants.ClientXorSend).
		AppendInt(constants.ErrSuccess).
		AppendInt(1).
		AppendInt(0).
		Append(username).
		Append("NULL"). // password placeholder, echoed back on relogin
		Append(displayname).
		AppendInt(int(sessionID)).
		AppendInt(0).
		AppendInt(0).
		AppendInt(rights).
		AppendInt(1).
		AppendInt(len(nodes))

	for _, n := range nodes {
		out.Append(n.ID()).
			Append(n.Name()).
			Append(n.Address()).
			AppendInt(n.Port()).
			AppendInt(n.CurrentPlayers()).
			AppendInt(int(n.ServerType()))
	}

	return out.Fill(-1, 4).
		AppendInt(0).
		AppendInt(0).
		Build()
}
