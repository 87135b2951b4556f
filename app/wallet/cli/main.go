// This program talks to a gossipchain node over its public API.
package main

import "github.com/ardanlabs/gossipchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
