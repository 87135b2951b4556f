package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/gossipchain/app/services/node/handlers/v1/public"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	from   string
	to     string
	amount int64
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Submit a transaction to the node",
	Run:   txRun,
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.Flags().StringVarP(&from, "from", "f", "", "Sender wallet, defaults to the node wallet.")
	txCmd.Flags().StringVarP(&to, "to", "t", "", "Receiver, defaults to a random peer of the node.")
	txCmd.Flags().Int64VarP(&amount, "amount", "v", 100, "Amount to send.")
}

func txRun(cmd *cobra.Command, args []string) {
	nt := public.NewTx{
		From:   from,
		To:     to,
		Amount: &amount,
	}

	var tx public.Tx
	if err := call(http.MethodPost, "/v1/tx", nt, &tx); err != nil {
		fail(err)
	}

	color.Green("Transaction added to the mempool")
	printTx(tx)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print the transactions waiting to be mined",
	Run:   pendingRun,
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}

func pendingRun(cmd *cobra.Command, args []string) {
	var txs []public.Tx
	if err := call(http.MethodGet, "/v1/tx/pending", nil, &txs); err != nil {
		fail(err)
	}

	color.Cyan("%d pending transactions", len(txs))
	for _, tx := range txs {
		printTx(tx)
	}
}

func printTx(tx public.Tx) {
	sender := tx.From
	if tx.FromName != "" {
		sender = fmt.Sprintf("%s (%s)", tx.From, tx.FromName)
	}
	receiver := tx.To
	if tx.ToName != "" {
		receiver = fmt.Sprintf("%s (%s)", tx.To, tx.ToName)
	}
	fmt.Printf("  %s -> %s: %d\n", sender, receiver, tx.Amount)
}
