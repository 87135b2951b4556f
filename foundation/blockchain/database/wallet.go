package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// WalletID represents the identity of a node's wallet. It is the address
// derived from the public key of the wallet's private key.
type WalletID string

// ToWalletID converts a hex-encoded string to a wallet id and validates the
// hex-encoded string is formatted correctly.
func ToWalletID(hex string) (WalletID, error) {
	w := WalletID(hex)
	if !w.IsWalletID() {
		return "", errors.New("invalid wallet format")
	}

	return w, nil
}

// PublicKeyToWalletID converts the public key to a wallet id.
func PublicKeyToWalletID(pk ecdsa.PublicKey) WalletID {
	return WalletID(crypto.PubkeyToAddress(pk).String())
}

// LoadWallet reads the private key at the specified path and returns the
// wallet id for it. If no file exists, a new key is generated and saved.
func LoadWallet(path string) (WalletID, error) {
	privateKey, err := crypto.LoadECDSA(path)
	switch {
	case err == nil:
		return PublicKeyToWalletID(privateKey.PublicKey), nil

	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("loading wallet key: %w", err)
	}

	privateKey, err = crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generating wallet key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating wallet folder: %w", err)
	}

	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		return "", fmt.Errorf("saving wallet key: %w", err)
	}

	return PublicKeyToWalletID(privateKey.PublicKey), nil
}

// IsWalletID verifies whether the underlying data represents a valid
// hex-encoded wallet address.
func (w WalletID) IsWalletID() bool {
	const addressLength = 20

	if has0xPrefix(w) {
		w = w[2:]
	}

	return len(w) == 2*addressLength && isHex(w)
}

// =============================================================================

// has0xPrefix validates the wallet starts with a 0x.
func has0xPrefix(w WalletID) bool {
	return len(w) >= 2 && w[0] == '0' && (w[1] == 'x' || w[1] == 'X')
}

// isHex validates whether each byte is valid hexadecimal string.
func isHex(w WalletID) bool {
	if len(w)%2 != 0 {
		return false
	}

	for _, c := range []byte(w) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
