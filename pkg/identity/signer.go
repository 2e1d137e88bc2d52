package identity

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Signer signs login messages for one account.
type Signer interface {
	// Address is the checksummed account address.
	Address() string
	// SignMessage returns the hex personal_sign signature of message.
	SignMessage(message string) (string, error)
}

// EthSigner is an EIP-191 personal_sign signer backed by a secp256k1 key.
type EthSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewEthSigner parses a hex private key, with or without 0x prefix.
func NewEthSigner(privateKey string) (*EthSigner, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if hexKey == "" {
		return nil, ErrNoWallet
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &EthSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address returns the checksummed address.
func (s *EthSigner) Address() string {
	return s.address
}

// SignMessage signs the EIP-191 hash of message. V is 27 or 28.
func (s *EthSigner) SignMessage(message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced a personal_sign signature.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifyChain dials rpcURL and checks that it serves chain want.
func VerifyChain(ctx context.Context, rpcURL string, want int64) error {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to dial RPC: %w", err)
	}
	defer client.Close()

	got, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain ID: %w", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		return fmt.Errorf("RPC serves chain %s, expected %d", got, want)
	}
	return nil
}
