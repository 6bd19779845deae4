package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/application/bot"
	"github.com/sasbridge/sasbridge-go/cli"
	"github.com/sasbridge/sasbridge-go/protocol"
)

// runCmd represents the run command
var runCmd = cli.NewRunCommand("sasbot", run)

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("config", "c", "botconfig.toml",
		"Path to bot configuration file")
}

func run(cmd *cobra.Command, args []string) {
	confPath := cmd.Flag("config").Value.String()
	conf := new(bot.Config)
	if err := conf.Load(confPath, "toml"); err != nil {
		log.Fatal(err)
	}

	logConf := conf.Logger
	if logConf == nil {
		logConf = &application.LoggerConfig{Environment: "development"}
	}
	logger := application.NewLogger(logConf)

	// The messaging-client integration ships separately; the stub
	// verifier accepts every handshake and reports a fixed device
	// directory so the bot can run end to end against the socket.
	verifier := protocol.NewStubVerifier()
	logger.Warn("running with the stub verifier, no messaging client attached")

	source, err := bot.ListenSocket(conf.EventSocket, logger)
	if err != nil {
		logger.Fatal(err.Error())
	}
	defer source.Stop()

	b, err := bot.NewBot(conf, verifier, source, logger)
	if err != nil {
		logger.Fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, bot.ErrSourceClosed) {
		logger.Fatal(err.Error())
	}
	logger.Info("sasbot stopped")
}
