package main

import (
	"os"

	"mail-relay-bot/internal/cli"
	"mail-relay-bot/internal/logging"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		logging.Log.Errorf("mailrelay: %v", err)
		os.Exit(1)
	}
}
