package serverpackets

import (
	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/packet"
)

// ClientAuth builds the join adjudication reply, echoing the claimed
// identity back to the node.
func ClientAuth(code int, username string, sessionID, rights int) []byte {
	return packet.NewOut(constants.PacketClientAuthentication, constants.XorAuthSend).
		AppendInt(code).
		Append(username).
		AppendInt(sessionID).
		AppendInt(rights).
		Build()
}
