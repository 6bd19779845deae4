package cmd

import (
	"github.com/sasbridge/sasbridge-go/cli"
)

// versionCmd represents the version command
var versionCmd = cli.NewVersionCommand("sasbot")

func init() {
	RootCmd.AddCommand(versionCmd)
}
