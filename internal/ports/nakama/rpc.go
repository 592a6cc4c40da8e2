package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"

	"liargame/internal/domain"
)

// RoomResponse is returned by both room RPCs.
type RoomResponse struct {
	MatchID string `json:"match_id"`
	Code    string `json:"code"`
}

type joinRoomRequest struct {
	Code string `json:"code"`
}

// RegisterRPCs registers the room RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcCreateRoom, rpcCreateRoom); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcJoinRoom, rpcJoinRoom)
}

// rpcCreateRoom allocates a room code that is not currently in use and
// creates the authoritative match for it. Codes are only six characters, so
// the collision check against live matches is real, not theoretical.
func rpcCreateRoom(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	for attempt := 0; attempt < domain.MaxRoomCodeAttempts; attempt++ {
		code := domain.GenerateRoomCode()
		if _, err := findRoomMatch(ctx, nk, code); err == nil {
			continue // code in use, try another
		}

		matchID, err := nk.MatchCreate(ctx, MatchNameLiarGame, map[string]interface{}{"code": code})
		if err != nil {
			logger.Error("rpcCreateRoom [User:%s]: Failed to create match: %v", userID, err)
			return "", runtime.NewError("could not create room", 13) // INTERNAL
		}

		logger.Info("rpcCreateRoom [User:%s]: Created room %s (%s)", userID, code, matchID)
		return marshalRoomResponse(matchID, code)
	}

	logger.Error("rpcCreateRoom [User:%s]: Room code space exhausted", userID)
	return "", runtime.NewError("could not allocate a room code", 8) // RESOURCE_EXHAUSTED
}

// rpcJoinRoom resolves a room code to its match ID.
func rpcJoinRoom(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	var req joinRoomRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("invalid payload", 3) // INVALID_ARGUMENT
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if !domain.ValidateRoomCode(code) {
		return "", runtime.NewError("invalid room code", 3)
	}

	matchID, err := findRoomMatch(ctx, nk, code)
	if err != nil {
		logger.Info("rpcJoinRoom [User:%s]: Room %s not found", userID, code)
		return "", runtime.NewError("room not found", 5) // NOT_FOUND
	}

	return marshalRoomResponse(matchID, code)
}

// findRoomMatch queries the match listing for a live room with this code.
func findRoomMatch(ctx context.Context, nk runtime.NakamaModule, code string) (string, error) {
	query := fmt.Sprintf("+label.game:%s +label.code:%s", labelGame, code)
	limit := 1
	authoritative := true

	matches, err := nk.MatchList(ctx, limit, authoritative, "", nil, nil, query)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no match with code %s", code)
	}
	return matches[0].MatchId, nil
}

func marshalRoomResponse(matchID, code string) (string, error) {
	data, err := json.Marshal(RoomResponse{MatchID: matchID, Code: code})
	if err != nil {
		return "", runtime.NewError("response marshal failed", 13)
	}
	return string(data), nil
}
