// Package cli wires the relay components into the mailrelay command tree.
package cli

import (
	"fmt"

	"mail-relay-bot/internal/config"
	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the mailrelay CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mailrelay",
		Short: "Relay new mailbox messages to chat subscribers",
		Long: `mailrelay watches an IMAP mailbox for unseen mail, archives every new message
and notifies the registered chats with a link to the archived copy.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "config.yaml", "path to the YAML configuration file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSyncOnceCommand(opts))
	cmd.AddCommand(NewChatsCommand(opts))
	cmd.AddCommand(NewMailCommand(opts))

	return cmd
}

// loadConfig reads the configuration and applies its log level.
func loadConfig(opts *RootOptions) (*models.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %s: %w", opts.ConfigPath, err)
	}
	if cfg.Log.Level != "" {
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	return cfg, nil
}
