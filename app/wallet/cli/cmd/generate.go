package cmd

import (
	"fmt"
	"os"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	path := getPrivateKeyPath()
	if _, err := os.Stat(path); err == nil {
		fail(fmt.Errorf("key %s already exists", path))
	}

	wallet, err := database.LoadWallet(path)
	if err != nil {
		fail(err)
	}

	fmt.Println(wallet)
}
