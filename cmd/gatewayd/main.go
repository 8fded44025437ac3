package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediagate/streamgate/config"
)

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Run the media streaming gateway with the given configuration.",
}

func init() {
	rootCmd.AddCommand(runCmd)
	config.SetFlagsFromConfig(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}
