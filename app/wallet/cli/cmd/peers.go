package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Print the peers the node is connected to",
	Run:   peersRun,
}

func init() {
	rootCmd.AddCommand(peersCmd)
}

func peersRun(cmd *cobra.Command, args []string) {
	var peers []peer.Peer
	if err := call(http.MethodGet, "/v1/peers", nil, &peers); err != nil {
		fail(err)
	}

	color.Cyan("%d peers", len(peers))
	for _, p := range peers {
		fmt.Println(" ", p)
	}
}
