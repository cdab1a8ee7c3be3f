// Package mailsync finds mail that arrived since the last recorded watermark.
package mailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	imapclient "mail-relay-bot/internal/imap"
	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/mailparse"
	"mail-relay-bot/internal/models"
	"mail-relay-bot/internal/watermark"
)

const failureSleepDuration = 30 * time.Minute

// ClientFactory returns a fresh, unconnected IMAP client. One session is opened per poll.
type ClientFactory func() imapclient.Client

// Publisher receives every new mail before the watermark moves past it.
type Publisher interface {
	Publish(ctx context.Context, mail *models.Mail) error
}

// StorageError wraps a watermark store failure. Unlike transport errors it is not retried.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "watermark store: " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err came from the watermark store
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

type Synchronizer struct {
	newClient ClientFactory
	store     watermark.Store
	cfg       models.EmailConfig

	loaded    bool
	hasMark   bool
	watermark uint32
	failures  int32

	sleep func(ctx context.Context, d time.Duration) error
}

// NewSynchronizer creates a Synchronizer for the mailbox described by cfg. The watermark is
// keyed by cfg.Login.
func NewSynchronizer(newClient ClientFactory, store watermark.Store, cfg models.EmailConfig) *Synchronizer {
	return &Synchronizer{
		newClient: newClient,
		store:     store,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// Watermark returns the cached watermark and whether one has been established
func (s *Synchronizer) Watermark() (uint32, bool) {
	return s.watermark, s.hasMark
}

// Batch is the result of one Fetch. The watermark moves only when the batch is committed.
type Batch struct {
	Mails []*models.Mail

	newest  uint32
	advance bool
	// baseline marks the first batch of a never-synchronized mailbox
	baseline bool
}

// Newest returns the UID the watermark moves to on Commit, and whether it moves at all.
func (b *Batch) Newest() (uint32, bool) {
	return b.newest, b.advance
}

// Poll fetches the new mail, hands every message to pub and commits the watermark only
// once all of them were published. pub may be nil. A publish failure leaves the watermark
// untouched so the same messages are fetched again on the next poll.
func (s *Synchronizer) Poll(ctx context.Context, pub Publisher) ([]*models.Mail, error) {
	batch, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		for _, mail := range batch.Mails {
			if err := pub.Publish(ctx, mail); err != nil {
				return nil, fmt.Errorf("publishing message UID %d: %w", mail.UID, err)
			}
		}
	}
	if err := s.Commit(ctx, batch); err != nil {
		return nil, err
	}
	return batch.Mails, nil
}

// Fetch opens an IMAP session and returns the mail that is new relative to the watermark
// without persisting anything. The first fetch of a never-synchronized mailbox returns no
// mail, only a baseline to commit.
func (s *Synchronizer) Fetch(ctx context.Context) (*Batch, error) {
	if err := s.loadWatermark(ctx); err != nil {
		return nil, err
	}

	client := s.newClient()
	if err := client.Connect(s.cfg.Imap); err != nil {
		return nil, err
	}
	defer func(client imapclient.Client) {
		_ = client.Close()
	}(client)

	if err := client.Login(s.cfg.Login, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}
	status, err := client.SelectMailbox(s.cfg.MailBox, true)
	if err != nil {
		return nil, fmt.Errorf("folder selection error: %w", err)
	}

	if !s.hasMark {
		var uidNext uint32
		if status != nil {
			uidNext = status.UidNext
		}
		return baseline(client, uidNext)
	}

	uids, err := client.SearchUnseenUIDs(s.watermark)
	if err != nil {
		return nil, err
	}
	batch := &Batch{}
	if len(uids) == 0 {
		logging.Log.Debug("No new messages")
		return batch, nil
	}

	for _, uid := range selectTail(uids, s.watermark) {
		if uid <= s.watermark {
			continue
		}
		msg, err := client.FetchMessage(uid)
		if err != nil {
			return nil, err
		}
		mail, err := mailparse.Parse(msg)
		if err != nil {
			logging.WithTrace("").WithError(err).Warnf("Skipping message UID %d", uid)
			continue
		}
		logging.WithTrace(mail.TraceID).Infof("New message UID %d from %s", uid, mail.Sender)
		batch.Mails = append(batch.Mails, mail)
	}

	if newest := uids[len(uids)-1]; newest > s.watermark {
		batch.newest, batch.advance = newest, true
	}
	return batch, nil
}

// baseline picks the starting watermark: the newest unseen UID, or UIDNEXT-1 when nothing
// is unseen so that the next message to arrive is relayed.
func baseline(client imapclient.Client, uidNext uint32) (*Batch, error) {
	uids, err := client.SearchUnseenUIDs(0)
	if err != nil {
		return nil, err
	}
	batch := &Batch{baseline: true}
	switch {
	case len(uids) > 0:
		batch.newest, batch.advance = uids[len(uids)-1], true
	case uidNext > 0:
		batch.newest, batch.advance = uidNext-1, true
	default:
		logging.Log.Warn("No unseen messages and no UIDNEXT reported, baseline deferred to the next poll")
	}
	return batch, nil
}

// Commit persists the watermark of a fetched batch. It never moves the watermark back.
func (s *Synchronizer) Commit(ctx context.Context, batch *Batch) error {
	if batch == nil || !batch.advance {
		return nil
	}
	if s.hasMark && batch.newest <= s.watermark {
		return nil
	}
	if err := s.saveWatermark(ctx, batch.newest); err != nil {
		return err
	}
	if batch.baseline {
		logging.Log.Infof("Baseline watermark set to UID %d", batch.newest)
	}
	return nil
}

func (s *Synchronizer) loadWatermark(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	uid, ok, err := s.store.Load(ctx, s.cfg.Login)
	if err != nil {
		return &StorageError{Err: err}
	}
	s.loaded, s.hasMark, s.watermark = true, ok, uid
	if ok {
		logging.Log.Infof("Resuming from watermark UID %d", uid)
	}
	return nil
}

func (s *Synchronizer) saveWatermark(ctx context.Context, uid uint32) error {
	if err := s.store.Save(ctx, s.cfg.Login, uid); err != nil {
		return &StorageError{Err: err}
	}
	s.hasMark, s.watermark = true, uid
	return nil
}

// selectTail picks the UIDs to fetch from an ascending search result. Scanning back from the
// newest UID, the tail is extended until a UID below the watermark shows up at least two
// positions back; without one only the newest UID is fetched. This bounds the work of a
// single poll.
func selectTail(uids []uint32, watermark uint32) []uint32 {
	left := len(uids) - 1
	for i := len(uids) - 1; i > 1; i-- {
		if uids[i-1] < watermark {
			left = i
			break
		}
	}
	return uids[left:]
}

// Run polls every cfg.RefreshTime until ctx is cancelled, handing each new mail to pub.
// IMAP and publish failures are logged and retried; only watermark store failures end the loop.
func (s *Synchronizer) Run(ctx context.Context, pub Publisher) error {
	logging.Log.Infof("Starting mailbox synchronization, refresh every %s", s.cfg.RefreshTime)

	for {
		_, err := s.Poll(ctx, pub)
		switch {
		case err == nil:
			s.failures = 0
		case IsStorageError(err):
			return err
		default:
			if backoff := s.recordFailure(err); backoff > 0 {
				if err := s.sleep(ctx, backoff); err != nil {
					return nil
				}
			}
		}

		if err := s.sleep(ctx, s.cfg.RefreshTime); err != nil {
			return nil
		}
	}
}

// recordFailure increments the failure count and returns the extra wait of the exponential backoff
func (s *Synchronizer) recordFailure(err error) time.Duration {
	s.failures++
	logging.Log.Errorf("Poll error: %v", err)

	backoff := backoffFor(s.failures)
	if backoff > 0 {
		logging.Log.Warnf("Poll failed %d times, waiting %s before next attempt", s.failures, backoff)
	}
	return backoff
}

func backoffFor(failures int32) time.Duration {
	if failures < 5 {
		return 0
	}
	base := 5 * time.Minute
	maxSteps := int32(10)

	n := failures - 5
	if n > maxSteps {
		n = maxSteps
	}

	backoff := base * time.Duration(1<<n)
	if backoff > failureSleepDuration {
		backoff = failureSleepDuration
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
