// Package server allocates per-connection identities: a unique session
// identifier plus a generated human-readable nickname.
package server

import (
	"math/rand"

	"github.com/google/uuid"
)

var nicknameAdjectives = []string{
	"Brave", "Calm", "Clever", "Curious", "Eager", "Gentle", "Happy",
	"Jolly", "Keen", "Lively", "Lucky", "Mellow", "Nimble", "Quiet",
	"Swift", "Witty",
}

var nicknameNouns = []string{
	"Badger", "Crane", "Dolphin", "Falcon", "Fox", "Heron", "Lynx",
	"Marmot", "Otter", "Owl", "Panda", "Raven", "Seal", "Sparrow",
	"Tiger", "Wolf",
}

// IdentityAllocator hands out session identifiers and nicknames for new
// connections. Allocation always succeeds and nothing is persisted; identities
// live only as long as the connection does.
type IdentityAllocator struct{}

// NewIdentityAllocator creates an IdentityAllocator.
func NewIdentityAllocator() *IdentityAllocator {
	return &IdentityAllocator{}
}

// Allocate returns a session identifier unique among connected sessions and a
// generated nickname. The identifier is a UUIDv4, so collision probability is
// negligible. Nicknames pair a random adjective with a random noun and are not
// required to be unique.
func (a *IdentityAllocator) Allocate() (sessionID, nickname string) {
	sessionID = uuid.NewString()
	nickname = nicknameAdjectives[rand.Intn(len(nicknameAdjectives))] +
		nicknameNouns[rand.Intn(len(nicknameNouns))]
	return sessionID, nickname
}
