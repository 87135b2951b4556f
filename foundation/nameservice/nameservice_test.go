package nameservice_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Lookup(t *testing.T) {
	t.Log("Given the need to name wallets.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a folder holds a wallet key.", testID)
		{
			root := t.TempDir()

			key, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a key: %v", failed, testID, err)
			}
			if err := crypto.SaveECDSA(filepath.Join(root, "miner1.ecdsa"), key); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to save a key: %v", failed, testID, err)
			}

			ns, err := nameservice.New(root)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to load the folder: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to load the folder.", success, testID)

			wallet := database.PublicKeyToWalletID(key.PublicKey)
			if name := ns.Lookup(wallet); name != "miner1" {
				t.Fatalf("\t%s\tTest %d:\tShould find the name for the wallet: got %q", failed, testID, name)
			}
			t.Logf("\t%s\tTest %d:\tShould find the name for the wallet.", success, testID)

			if name := ns.Lookup("0x0"); name != "0x0" {
				t.Fatalf("\t%s\tTest %d:\tShould fall back to the wallet id: got %q", failed, testID, name)
			}
			t.Logf("\t%s\tTest %d:\tShould fall back to the wallet id.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the folder does not exist.", testID)
		{
			ns, err := nameservice.New(filepath.Join(t.TempDir(), "missing"))
			if err != nil || len(ns.Copy()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould get an empty name service: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get an empty name service.", success, testID)
		}
	}
}
