// Command pocketsync runs the PocketBizz offline proxy and its maintenance
// commands.
package main

import (
	"fmt"
	"os"

	"github.com/pocketbizz/pocketsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
