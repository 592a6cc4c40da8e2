package domain

import (
	"crypto/rand"
	"errors"
	"regexp"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 6

	// MaxRoomCodeAttempts bounds the collision retry loop when generating a
	// code against a registry.
	MaxRoomCodeAttempts = 10
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ErrRoomCodeExhausted is returned when every generation attempt collided.
var ErrRoomCodeExhausted = errors.New("could not generate a unique room code")

// GenerateRoomCode returns a random 6-character uppercase alphanumeric room
// code. Uniqueness is not guaranteed; callers that need it must check against
// a registry, see GenerateUniqueRoomCode.
func GenerateRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, roomCodeLength)
	for i := range out {
		out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(out)
}

// GenerateUniqueRoomCode generates codes until taken reports one as unused,
// giving up after MaxRoomCodeAttempts tries.
func GenerateUniqueRoomCode(taken func(code string) bool) (string, error) {
	for attempt := 0; attempt < MaxRoomCodeAttempts; attempt++ {
		code := GenerateRoomCode()
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrRoomCodeExhausted
}

// ValidateRoomCode reports whether code is a well-formed room code.
func ValidateRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}
