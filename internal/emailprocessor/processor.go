package emailprocessor

import (
	"context"
	"fmt"
	"time"

	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"
)

// Archiver stores a relayed mail and returns its stable id
type Archiver interface {
	AddMail(ctx context.Context, sender string, date time.Time, text, html string) (int64, error)
}

// Notifier fans a stored mail out to the subscribed chats
type Notifier interface {
	Notify(ctx context.Context, mail *models.Mail, id int64) error
}

type Processor struct {
	archive  Archiver
	notifier Notifier
}

// NewProcessor creates a new Processor instance with the provided archive and notifier
func NewProcessor(archive Archiver, notifier Notifier) *Processor {
	return &Processor{
		archive:  archive,
		notifier: notifier,
	}
}

// ProcessMail orchestrates the handling of one relayed mail:
// archive → notify. Errors are storage failures and are not retried here.
func (p *Processor) ProcessMail(ctx context.Context, mail *models.Mail) error {
	locallog := logging.WithTrace(mail.TraceID)

	id, err := p.archive.AddMail(ctx, mail.Sender, mail.Date, mail.Text, mail.HTML)
	if err != nil {
		return fmt.Errorf("archiving mail from %s: %w", mail.Sender, err)
	}
	locallog.Infof("Archived mail from %s as %d", mail.Sender, id)

	if err := p.notifier.Notify(ctx, mail, id); err != nil {
		return fmt.Errorf("notifying mail %d: %w", id, err)
	}
	return nil
}
