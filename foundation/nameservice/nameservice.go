// Package nameservice reads a folder of wallet keys and creates a name
// service lookup for the wallet ids.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of wallets for name lookup.
type NameService struct {
	wallets map[database.WalletID]string
}

// New constructs a name service with the wallets from the .ecdsa files
// under root. A missing folder produces an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		wallets: make(map[database.WalletID]string),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		wallet := database.PublicKeyToWalletID(privateKey.PublicKey)
		ns.wallets[wallet] = strings.TrimSuffix(filepath.Base(fileName), ".ecdsa")

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ns, nil
		}
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Add registers a name for a wallet id.
func (ns *NameService) Add(wallet database.WalletID, name string) {
	ns.wallets[wallet] = name
}

// Lookup returns the name for the specified wallet id.
func (ns *NameService) Lookup(wallet database.WalletID) string {
	name, exists := ns.wallets[wallet]
	if !exists {
		return string(wallet)
	}
	return name
}

// Copy returns a copy of the map of names and wallet ids.
func (ns *NameService) Copy() map[database.WalletID]string {
	return maps.Clone(ns.wallets)
}
