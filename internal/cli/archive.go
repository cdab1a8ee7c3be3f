package cli

import (
	"fmt"
	"strconv"

	"mail-relay-bot/internal/archive"
	"mail-relay-bot/internal/httpapi"

	"github.com/spf13/cobra"
)

const (
	timeLayout       = "2006-01-02 15:04:05"
	defaultListLimit = 20
)

// NewChatsCommand creates the chats command group.
func NewChatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Inspect the notification roster",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered chat ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func(store *archive.Store) {
				_ = store.Close()
			}(store)

			ids, err := store.ListChatIDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	return cmd
}

// NewMailCommand creates the mail command group.
func NewMailCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Inspect archived mail",
	}

	cmd.AddCommand(newMailShowCommand(rootOpts))
	cmd.AddCommand(newMailListCommand(rootOpts))

	return cmd
}

func newMailShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the body of an archived mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid mail id %q", args[0])
			}

			store, err := openArchive(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func(store *archive.Store) {
				_ = store.Close()
			}(store)

			mail, err := store.GetMail(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("mail %d: %w", id, err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Id:     %d\nSender: %s\nDate:   %s\n\n", mail.ID, mail.Sender, mail.Date.Format(timeLayout))
			if mail.Text != "" {
				_, _ = fmt.Fprintln(out, mail.Text)
			} else {
				_, _ = fmt.Fprintln(out, httpapi.RenderBody(mail))
			}
			return nil
		},
	}
}

func newMailListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent archived mail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer func(store *archive.Store) {
				_ = store.Close()
			}(store)

			mails, err := store.ListMails(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, mail := range mails {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", mail.ID, mail.Date.Format(timeLayout), mail.Sender)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum number of mails to list")

	return cmd
}

func openArchive(cmd *cobra.Command, rootOpts *RootOptions) (*archive.Store, error) {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return nil, err
	}
	store, err := archive.Open(cmd.Context(), cfg.Archive.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return store, nil
}
