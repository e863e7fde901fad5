package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// inviteTokenBytes yields 32 hex characters, enough entropy to treat the
// token as an unguessable bearer credential.
const inviteTokenBytes = 16

func newInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
