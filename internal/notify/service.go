package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"

	"golang.org/x/time/rate"
)

const (
	// MaxSummaryLength bounds the notice text, in characters
	MaxSummaryLength = 3500
	UnknownLabel     = "unknown"

	timeLayout = "2006-01-02 15:04:05"
)

// Roster lists the chats that receive notices.
type Roster interface {
	ListChatIDs(ctx context.Context) ([]int64, error)
}

type Service struct {
	sender    Sender
	roster    Roster
	labels    map[string]string
	webAppURL string
	limiter   *rate.Limiter
}

// NewService creates a new instance of the notification Service. labels maps sender
// addresses to application names and is copied; limiter may be nil.
func NewService(sender Sender, roster Roster, labels map[string]string, webAppURL string, limiter *rate.Limiter) *Service {
	copied := make(map[string]string, len(labels))
	for addr, label := range labels {
		copied[strings.ToLower(addr)] = label
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Service{
		sender:    sender,
		roster:    roster,
		labels:    copied,
		webAppURL: strings.TrimRight(webAppURL, "/"),
		limiter:   limiter,
	}
}

// Label returns the application name configured for sender, or UnknownLabel
func (s *Service) Label(sender string) string {
	if label, ok := s.labels[strings.ToLower(sender)]; ok {
		return label
	}
	return UnknownLabel
}

// MailLink builds the deep link under which the content endpoint serves mail id
func (s *Service) MailLink(id int64) string {
	return s.webAppURL + "/mail/" + strconv.FormatInt(id, 10)
}

// Notify sends a summary of mail, linked to archived id, to every chat of the roster.
// A failed delivery is logged and does not stop delivery to the remaining chats;
// only a roster lookup failure is returned.
func (s *Service) Notify(ctx context.Context, mail *models.Mail, id int64) error {
	locallog := logging.WithTrace(mail.TraceID)

	chats, err := s.roster.ListChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}

	text := FormatSummary(mail, s.Label(mail.Sender))
	link := s.MailLink(id)

	delivered := 0
	for _, chatID := range chats {
		if err := s.limiter.Wait(ctx); err != nil {
			locallog.Warnf("Fan-out interrupted after %d of %d chats: %v", delivered, len(chats), err)
			return nil
		}
		if err := s.sender.Send(ctx, chatID, text, link); err != nil {
			locallog.WithError(err).Errorf("Error sending notice to chat %d", chatID)
			continue
		}
		delivered++
	}

	locallog.Infof("Mail %d delivered to %d of %d chats", id, delivered, len(chats))
	return nil
}

// FormatSummary renders the notice text for mail, truncated to MaxSummaryLength characters
func FormatSummary(mail *models.Mail, label string) string {
	text := mail.Text
	if text == "" {
		text = "(no text)"
	}

	summary := fmt.Sprintf("New message received:\nSender: %s\nApplication: %s\nSubject: %s\nTime: %s\nText: %s",
		mail.Sender, label, mail.Subject, mail.Date.UTC().Format(timeLayout), text)

	runes := []rune(summary)
	if len(runes) > MaxSummaryLength {
		summary = string(runes[:MaxSummaryLength])
	}
	return summary
}
