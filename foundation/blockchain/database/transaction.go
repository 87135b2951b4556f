package database

import (
	"fmt"
	"time"
)

// Tx is the transactional information between two parties. No balance or
// signature rules are applied to a transaction, any amount is recorded.
type Tx struct {
	From   string `json:"from"`   // Identity of the party sending the amount.
	To     string `json:"to"`     // Identity of the party receiving the amount.
	Amount int64  `json:"amount"` // Value being transferred.
	Time   uint64 `json:"time"`   // Unix nanoseconds when the transaction was created.
}

// NewTx constructs a new transaction stamped with the current time.
func NewTx(from string, to string, amount int64) Tx {
	return Tx{
		From:   from,
		To:     to,
		Amount: amount,
		Time:   uint64(time.Now().UTC().UnixNano()),
	}
}

// Equal reports whether two transactions hold the same values.
func (tx Tx) Equal(other Tx) bool {
	return tx == other
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s -> %s: %d", tx.From, tx.To, tx.Amount)
}
