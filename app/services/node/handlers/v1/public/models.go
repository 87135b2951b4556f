package public

import (
	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/nameservice"
)

// defaultAmount is sent when a transaction request names no amount.
const defaultAmount = 100

// NewTx is what a client posts to create a transaction. When To is empty
// the transaction is sent to a random connected peer. When From is empty
// the node's wallet is used.
type NewTx struct {
	From   string `json:"from" validate:"omitempty,wallet"`
	To     string `json:"to" validate:"omitempty,max=128"`
	Amount *int64 `json:"amount"`
}

// Tx is a transaction with the names of the wallets involved.
type Tx struct {
	From     string `json:"from"`
	FromName string `json:"from_name"`
	To       string `json:"to"`
	ToName   string `json:"to_name"`
	Amount   int64  `json:"amount"`
	Time     uint64 `json:"time"`
}

func toTx(ns *nameservice.NameService, tx database.Tx) Tx {
	return Tx{
		From:     tx.From,
		FromName: ns.Lookup(database.WalletID(tx.From)),
		To:       tx.To,
		ToName:   ns.Lookup(database.WalletID(tx.To)),
		Amount:   tx.Amount,
		Time:     tx.Time,
	}
}

func toTxs(ns *nameservice.NameService, trans []database.Tx) []Tx {
	txs := make([]Tx, len(trans))
	for i, tx := range trans {
		txs[i] = toTx(ns, tx)
	}
	return txs
}

// Chain is the node's chain as returned to clients.
type Chain struct {
	Length int              `json:"length"`
	Valid  bool             `json:"valid"`
	Blocks []database.Block `json:"blocks"`
}

// Wallet is a known wallet and its name.
type Wallet struct {
	ID   database.WalletID `json:"id"`
	Name string            `json:"name"`
	Node bool              `json:"node,omitempty"`
}
