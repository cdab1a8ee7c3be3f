package cli

import (
	"context"
	"fmt"

	"mail-relay-bot/internal/archive"
	"mail-relay-bot/internal/config"
	imapclient "mail-relay-bot/internal/imap"
	"mail-relay-bot/internal/mailsync"
	"mail-relay-bot/internal/models"
	"mail-relay-bot/internal/relay"
	"mail-relay-bot/internal/watermark"

	"github.com/redis/go-redis/v9"
)

func newRedisClient(cfg models.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// newWatermarkStore picks the configured watermark backend. rdb may be nil when the
// backend is sql.
func newWatermarkStore(ctx context.Context, cfg *models.Config, rdb redis.UniversalClient, archiveStore *archive.Store) (watermark.Store, error) {
	switch cfg.Watermark.Backend {
	case config.WatermarkSQL:
		if archiveStore == nil {
			return nil, fmt.Errorf("sql watermark backend needs the archive database")
		}
		store, err := watermark.NewSQLStore(ctx, archiveStore.DB())
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.WatermarkMemory:
		return watermark.NewMemoryStore(), nil
	case config.WatermarkRedis, "":
		if rdb == nil {
			return nil, fmt.Errorf("redis watermark backend needs a redis client")
		}
		return watermark.NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("unknown watermark backend %q", cfg.Watermark.Backend)
	}
}

// newTransport picks the relay channel. The memory broker only connects the publisher
// and subscriber of one process.
func newTransport(cfg *models.Config, rdb redis.UniversalClient) (relay.Transport, error) {
	switch cfg.Relay.Transport {
	case config.TransportMemory:
		return relay.NewMemoryBroker(), nil
	case config.TransportRedis, "":
		if rdb == nil {
			return nil, fmt.Errorf("redis relay transport needs a redis client")
		}
		return relay.NewRedisTransport(rdb), nil
	default:
		return nil, fmt.Errorf("unknown relay transport %q", cfg.Relay.Transport)
	}
}

func newSynchronizer(cfg *models.Config, store watermark.Store) *mailsync.Synchronizer {
	return mailsync.NewSynchronizer(func() imapclient.Client {
		return imapclient.NewStandardClient()
	}, store, cfg.Email)
}
