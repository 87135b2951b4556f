// Package genesis maintains access to the genesis file which holds the
// settings every node on the network must agree on.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Set of policies applied when neither the local nor a competing chain is valid.
const (
	PolicyFatal  = "fatal"
	PolicyReject = "reject"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date           time.Time `json:"date"`
	ChainID        uint16    `json:"chain_id"`         // The chain id represents an unique id for this running instance.
	Difficulty     int       `json:"difficulty"`       // Length of the random target a block hash must start with.
	SearchWidth    uint64    `json:"search_width"`     // Number of nonces tried in parallel per mining round.
	MinTxPerBlock  int       `json:"min_tx_per_block"` // Minimum number of pending transactions required to mine.
	MaxRounds      int       `json:"max_rounds"`       // Mining rounds attempted before giving up, 0 means no limit.
	ConflictPolicy string    `json:"conflict_policy"`  // What to do when no valid chain exists: fatal or reject.
}

// Default returns the settings used when no genesis file is provided.
func Default() Genesis {
	return Genesis{
		Date:           time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		Difficulty:     3,
		SearchWidth:    256,
		MinTxPerBlock:  1,
		ConflictPolicy: PolicyFatal,
	}
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the settings are usable for mining.
func (g Genesis) Validate() error {
	if g.Difficulty < 0 || g.Difficulty > 64 {
		return fmt.Errorf("difficulty must be between 0 and 64, got %d", g.Difficulty)
	}

	if g.SearchWidth == 0 {
		return fmt.Errorf("search width must be greater than 0")
	}

	if g.MinTxPerBlock < 0 {
		return fmt.Errorf("min tx per block must not be negative, got %d", g.MinTxPerBlock)
	}

	switch g.ConflictPolicy {
	case PolicyFatal, PolicyReject:
	default:
		return fmt.Errorf("unknown conflict policy %q", g.ConflictPolicy)
	}

	return nil
}
