package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Load(t *testing.T) {
	type table struct {
		name    string
		content string
		valid   bool
	}

	tt := []table{
		{"full", `{"difficulty": 2, "search_width": 64, "min_tx_per_block": 4, "conflict_policy": "reject"}`, true},
		{"defaults", `{}`, true},
		{"policy", `{"conflict_policy": "panic"}`, false},
		{"width", `{"search_width": 0}`, false},
		{"difficulty", `{"difficulty": 65}`, false},
	}

	t.Log("Given the need to load the genesis settings.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen loading the %s file.", testID, tst.name)
			{
				path := filepath.Join(t.TempDir(), "genesis.json")
				if err := os.WriteFile(path, []byte(tst.content), 0600); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to write the file: %v", failed, testID, err)
				}

				_, err := genesis.Load(path)
				if (err == nil) != tst.valid {
					t.Fatalf("\t%s\tTest %d:\tShould get the expected result: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
			}
		}
	}
}
