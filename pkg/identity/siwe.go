package identity

import (
	"fmt"
	"time"
)

// issuedAtLayout matches JavaScript's Date.toISOString.
const issuedAtLayout = "2006-01-02T15:04:05.000Z"

// SIWEMessage holds the fields of a Sign-In with Ethereum message.
type SIWEMessage struct {
	Domain   string
	Address  string
	URI      string
	ChainID  int64
	Nonce    string
	IssuedAt time.Time
}

// String renders the message in the exact layout the API verifies.
func (m SIWEMessage) String() string {
	return fmt.Sprintf("%s wants you to sign in with your Ethereum account:\n%s\n\nSign in with Ethereum\n\nURI: %s\nVersion: 1\nChain ID: %d\nNonce: %s\nIssued At: %s",
		m.Domain, m.Address, m.URI, m.ChainID, m.Nonce, m.IssuedAt.UTC().Format(issuedAtLayout))
}
