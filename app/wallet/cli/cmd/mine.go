package cmd

import (
	"net/http"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Ask the node to mine its pending transactions",
	Run:   mineRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
}

func mineRun(cmd *cobra.Command, args []string) {
	color.Cyan("Mining, this can take a while...")

	var block database.Block
	if err := call(http.MethodPost, "/v1/mine", nil, &block); err != nil {
		fail(err)
	}

	color.Green("Block mined")
	printBlock(block)
}
