// Package cmd provides the CLI commands for the sasbot
// device-verification bot.
package cmd

import (
	"github.com/sasbridge/sasbridge-go/cli"
)

// RootCmd represents the base "sasbot" command when called without any
// subcommands.
var RootCmd = cli.NewRootCommand("sasbot",
	"Device-verification bot for end-to-end-encrypted chats",
	`Device-verification bot for end-to-end-encrypted chats`)

// Execute adds all subcommands (i.e. "init" and "run") to the RootCmd
// and sets their flags appropriately.
func Execute() {
	cli.ExecuteRoot(RootCmd)
}
