package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEthSigner(t *testing.T) {
	s, err := NewEthSigner(testKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address())

	s, err = NewEthSigner(strings.TrimPrefix(testKey, "0x"))
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address())

	_, err = NewEthSigner("")
	assert.ErrorIs(t, err, ErrNoWallet)

	_, err = NewEthSigner("0xzz")
	assert.Error(t, err)
}

func TestSignMessage_RecoversAddress(t *testing.T) {
	s, err := NewEthSigner(testKey)
	require.NoError(t, err)

	sig, err := s.SignMessage("hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+65*2)

	v := sig[len(sig)-2:]
	assert.Contains(t, []string{"1b", "1c"}, v)

	addr, err := RecoverAddress("hello", sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr)

	addr, err = RecoverAddress("hello!", sig)
	require.NoError(t, err)
	assert.NotEqual(t, testAddress, addr)
}

func TestRecoverAddress_Invalid(t *testing.T) {
	_, err := RecoverAddress("m", "nothex")
	assert.Error(t, err)
	_, err = RecoverAddress("m", "0x1234")
	assert.Error(t, err)
}

func TestSIWEMessage(t *testing.T) {
	m := SIWEMessage{
		Domain:   "testnet.huddle01.com",
		Address:  testAddress,
		URI:      "https://testnet.huddle01.com",
		ChainID:  2524852,
		Nonce:    "abc123",
		IssuedAt: time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.FixedZone("WIB", 7*3600)),
	}

	want := "testnet.huddle01.com wants you to sign in with your Ethereum account:\n" +
		testAddress + "\n\n" +
		"Sign in with Ethereum\n\n" +
		"URI: https://testnet.huddle01.com\n" +
		"Version: 1\n" +
		"Chain ID: 2524852\n" +
		"Nonce: abc123\n" +
		"Issued At: 2025-01-01T20:04:05.678Z"
	assert.Equal(t, want, m.String())
}
