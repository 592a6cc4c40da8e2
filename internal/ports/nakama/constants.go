package nakama

const (
	// RpcCreateRoom creates a fresh authoritative room and returns its code.
	RpcCreateRoom = "create_room"

	// RpcJoinRoom resolves a room code to a match ID.
	RpcJoinRoom = "join_room"

	// MatchNameLiarGame is the authoritative match handler name registered with Nakama.
	MatchNameLiarGame = "liargame_match"

	// labelGame tags match labels so room-code queries never collide with
	// other games on the same cluster.
	labelGame = "liargame"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpAction int64 = 1 // JSON action envelope
	OpChat   int64 = 2 // JSON chat message

	// Server -> Client
	OpRoomState int64 = 101 // per-recipient room snapshot
	OpChatRelay int64 = 102
	OpError     int64 = 103
)
