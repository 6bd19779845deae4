package cmd

import (
	"log"
	"path"

	"github.com/spf13/cobra"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/application/bot"
	"github.com/sasbridge/sasbridge-go/cli"
	"github.com/sasbridge/sasbridge-go/protocol"
)

// initCmd represents the init command
var initCmd = cli.NewInitCommand("sasbot", mkBotConfig)

func init() {
	RootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("dir", "d", ".", "Location of directory for storing generated files")
}

func mkBotConfig(cmd *cobra.Command, args []string) {
	dir := cmd.Flag("dir").Value.String()
	file := path.Join(dir, "botconfig.toml")

	logConf := &application.LoggerConfig{
		Environment: "development",
	}
	conf := bot.NewConfig(file, "toml",
		protocol.DefaultConfirmationWindow, protocol.DefaultPollInterval,
		path.Join(dir, "sasbot-journal"), path.Join(dir, "sasbot.sock"),
		logConf)
	if err := conf.Save(); err != nil {
		log.Print(err)
	}
}
