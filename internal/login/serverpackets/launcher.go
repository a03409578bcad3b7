package serverpackets

import (
	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/packet"
)

// Launcher builds the fixed launcher reply: seven zero-filled blocks.
func Launcher() []byte {
	return packet.NewOut(constants.PacketLauncher, constants.ClientXorSend).
		Fill(0, 7).
		Build()
}
