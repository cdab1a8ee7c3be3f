package cli

import (
	"fmt"
	"io"

	"mail-relay-bot/internal/archive"
	"mail-relay-bot/internal/config"
	"mail-relay-bot/internal/models"
	"mail-relay-bot/internal/relay"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type SyncOnceOptions struct {
	*RootOptions
	Publish bool
}

// NewSyncOnceCommand creates the sync-once command.
func NewSyncOnceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOnceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync-once",
		Short: "Poll the mailbox once and print the new mail",
		Long: `Run a single synchronization pass against the mailbox and print what is new.

Without --publish this is a dry run: the new mail is printed and the watermark stays
where it is. With --publish the mail is sent to the relay channel and the watermark is
advanced exactly as the run command would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncOnce(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "publish new mail to the relay channel")

	return cmd
}

func runSyncOnce(cmd *cobra.Command, opts *SyncOnceOptions) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Publish && cfg.Relay.Transport != config.TransportRedis {
		return fmt.Errorf("--publish needs the redis relay transport, got %q", cfg.Relay.Transport)
	}

	var rdb redis.UniversalClient
	if opts.Publish || cfg.Watermark.Backend == config.WatermarkRedis {
		client := newRedisClient(cfg.Redis)
		defer func() {
			_ = client.Close()
		}()
		rdb = client
	}

	var store *archive.Store
	if cfg.Watermark.Backend == config.WatermarkSQL {
		store, err = archive.Open(ctx, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer func(store *archive.Store) {
			_ = store.Close()
		}(store)
	}

	marks, err := newWatermarkStore(ctx, cfg, rdb, store)
	if err != nil {
		return err
	}
	synchronizer := newSynchronizer(cfg, marks)

	var mails []*models.Mail
	if opts.Publish {
		publisher := relay.NewPublisher(relay.NewRedisTransport(rdb), cfg.Redis.Channel)
		mails, err = synchronizer.Poll(ctx, publisher)
		if err != nil {
			return err
		}
	} else {
		batch, err := synchronizer.Fetch(ctx)
		if err != nil {
			return err
		}
		mails = batch.Mails
	}

	out := cmd.OutOrStdout()
	if len(mails) == 0 {
		_, _ = fmt.Fprintln(out, "No new mail")
	}
	for _, mail := range mails {
		printMail(out, mail)
	}
	if uid, ok := synchronizer.Watermark(); ok {
		_, _ = fmt.Fprintf(out, "Watermark: UID %d\n", uid)
	} else {
		_, _ = fmt.Fprintln(out, "Watermark: unset")
	}
	return nil
}

func printMail(w io.Writer, mail *models.Mail) {
	_, _ = fmt.Fprintf(w, "UID %d\n  From:    %s\n  Subject: %s\n  Date:    %s\n",
		mail.UID, mail.Sender, mail.Subject, mail.Date.Format(timeLayout))
	if len(mail.Attachments) > 0 {
		_, _ = fmt.Fprintf(w, "  Files:   %v\n", mail.Attachments)
	}
}
