package serverpackets

import (
	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/packet"
)

// GameServerAuthError builds an admission reply carrying only an error
// code.
func GameServerAuthError(code int) []byte {
	return packet.NewOut(constants.PacketGameServerAuthentication, constants.XorAuthSend).
		AppendInt(code).
		Build()
}

// GameServerAuthSuccess builds the admission reply that tells the node
// its assigned session id.
func GameServerAuthSuccess(sessionID string) []byte {
	return packet.NewOut(constants.PacketGameServerAuthentication, constants.XorAuthSend).
		AppendInt(constants.ErrSuccess).
		Append(sessionID).
		Build()
}
