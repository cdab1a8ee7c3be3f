package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mail-relay-bot/internal/archive"
	"mail-relay-bot/internal/bot"
	"mail-relay-bot/internal/emailprocessor"
	"mail-relay-bot/internal/httpapi"
	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"
	"mail-relay-bot/internal/notify"
	"mail-relay-bot/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the synchronizer, relay subscriber, chat bot and content endpoint",
		Long: `Start every long-running loop of the relay in one process.

The process stops on SIGINT or SIGTERM, or when a loop hits a storage failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAll(ctx, cfg)
		},
	}
}

func runAll(ctx context.Context, cfg *models.Config) error {
	logging.Log.Infof("Starting mail relay for %s, refresh every %s", cfg.Email.Login, cfg.Email.RefreshTime)

	store, err := archive.Open(ctx, cfg.Archive.DSN)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func(store *archive.Store) {
		_ = store.Close()
	}(store)

	rdb := newRedisClient(cfg.Redis)
	defer func() {
		_ = rdb.Close()
	}()

	marks, err := newWatermarkStore(ctx, cfg, rdb, store)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}

	transport, err := newTransport(cfg, rdb)
	if err != nil {
		return err
	}
	synchronizer := newSynchronizer(cfg, marks)
	publisher := relay.NewPublisher(transport, cfg.Redis.Channel)
	subscriber := relay.NewSubscriber(transport, cfg.Redis.Channel)

	limiter := rate.NewLimiter(rate.Limit(cfg.Telegram.SendRate), cfg.Telegram.SendBurst)
	notifier := notify.NewService(notify.NewTelegramSender(api), store, cfg.Senders, cfg.Telegram.WebAppURL, limiter)
	processor := emailprocessor.NewProcessor(store, notifier)
	chatBot := bot.New(api, bot.NewRegistrar(store, cfg.Telegram.AccessToken))

	server := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           httpapi.NewServer(store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return synchronizer.Run(gctx, publisher)
	})
	g.Go(func() error {
		return subscriber.Run(gctx, processor.ProcessMail)
	})
	g.Go(func() error {
		return chatBot.Run(gctx)
	})
	g.Go(func() error {
		logging.Log.Infof("Serving archived mail on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("content endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logging.Log.Info("Mail relay stopped")
	return err
}
