package constants

// Listener ports.
const (
	PortAuthClient = 5330 // game clients (launcher/login)
	PortInternal   = 5013 // game server nodes
)

// XOR keys per direction and endpoint. The client pair is fixed by the
// retail client; the internal pair is shared with the game server build.
const (
	ClientXorSend    byte = 0x96
	ClientXorReceive byte = 0xC3
	XorAuthSend      byte = 0x2F
	XorGameSend      byte = 0x7E
)

// Client packet ids.
const (
	PacketLauncher    uint16 = 0x1010
	PacketServerList  uint16 = 0x1100
	PacketSetNickname uint16 = 0x1101
)

// Internal packet ids (auth ↔ game server channel).
const (
	PacketHello                    uint16 = 0x1001
	PacketGameServerAuthentication uint16 = 0x2000
	PacketGameServerStatus         uint16 = 0x2001
	PacketClientAuthentication     uint16 = 0x2002
)

// Internal channel error codes. These live in their own namespace,
// distinct from the ServerList client error codes.
const (
	ErrSuccess             = 1
	ErrEndConnection       = 2
	ErrInvalidKeySession   = 3
	ErrInvalidSessionMatch = 4
	ErrAlreadyAuthorized   = 5
	ErrServerLimitReached  = 6
	ErrServerErrorOther    = 7
	ErrInvalidServerType   = 8
)

// ServerList error codes sent to game clients.
const (
	ErrIllegalException   = 70101
	ErrClientVerNotMatch  = 70301
	ErrNewNickname        = 72000
	ErrWrongUser          = 72010
	ErrWrongPW            = 72020
	ErrAlreadyLoggedIn    = 72030
	ErrBannedTime         = 73020
	ErrNotActive          = 73040
	ErrBanned             = 73050
	ErrEnterIDError       = 74010
	ErrEnterPasswordError = 74020
	ErrErrorNickname      = 74030
	ErrNicknameTaken      = 74070
	ErrNicknameTooLong    = 74100
	ErrIllegalNickname    = 74110
)

// ServerType classifies a game server node.
type ServerType int

const (
	ServerTypeEntire ServerType = iota
	ServerTypeAdult
	ServerTypeClan
	ServerTypeTest
	ServerTypeDevelopment
	ServerTypeTrainee
)

// Valid reports whether t is one of the admitted server types.
func (t ServerType) Valid() bool {
	return t >= ServerTypeEntire && t <= ServerTypeTrainee
}

func (t ServerType) String() string {
	switch t {
	case ServerTypeEntire:
		return "ENTIRE"
	case ServerTypeAdult:
		return "ADULT"
	case ServerTypeClan:
		return "CLAN"
	case ServerTypeTest:
		return "TEST"
	case ServerTypeDevelopment:
		return "DEVELOPMENT"
	case ServerTypeTrainee:
		return "TRAINEE"
	default:
		return "UNKNOWN"
	}
}

// Session limits dictated by the client protocol format.
const (
	MaxUserSessions = 32768 // session id is an int15 on the wire
	MaxNodeSessions = 31    // the 2008 client renders at most 31 servers
	MaxPlayersCap   = 3600  // reported max players is clamped to this
)

// ReadBufSize is the per-read ceiling of the connection read loop.
const ReadBufSize = 1024
