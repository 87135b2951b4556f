package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/gossipchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the chain held by the node",
	Run:   chainRun,
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

func chainRun(cmd *cobra.Command, args []string) {
	var chain public.Chain
	if err := call(http.MethodGet, "/v1/chain", nil, &chain); err != nil {
		fail(err)
	}

	status := color.GreenString("valid")
	if !chain.Valid {
		status = color.RedString("invalid")
	}
	color.Cyan("Chain length %d", chain.Length)
	fmt.Println("Status:", status)

	for _, block := range chain.Blocks {
		printBlock(block)
	}
}

func printBlock(block database.Block) {
	color.Yellow("\nBlock %s", block.Index)
	fmt.Println("Hash:     ", block.Hash)
	fmt.Println("PrevHash: ", block.PrevHash)
	fmt.Println("Nonce:    ", block.Nonce)
	for _, tx := range block.Transactions {
		fmt.Printf("  %s -> %s: %d\n", tx.From, tx.To, tx.Amount)
	}
}

var blockCmd = &cobra.Command{
	Use:   "block <index>",
	Short: "Print the block at the index",
	Args:  cobra.ExactArgs(1),
	Run:   blockRun,
}

func init() {
	rootCmd.AddCommand(blockCmd)
}

func blockRun(cmd *cobra.Command, args []string) {
	var block database.Block
	if err := call(http.MethodGet, "/v1/blocks/"+args[0], nil, &block); err != nil {
		fail(err)
	}

	printBlock(block)
}
