package mailparse

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"mail-relay-bot/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// ErrMalformed is returned for messages that cannot be turned into a models.Mail.
// Callers skip such messages instead of retrying them.
var ErrMalformed = errors.New("malformed message")

var emailAddressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Parse converts a fetched IMAP message into a normalized Mail
func Parse(msg *imap.Message) (*models.Mail, error) {
	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("%w: no body section in UID %d", ErrMalformed, msg.Uid)
	}

	email, err := ParseReader(r, msg.InternalDate)
	if err != nil {
		return nil, err
	}
	email.UID = msg.Uid
	return email, nil
}

// ParseReader parses a raw RFC 5322 message. internalDate is used when the Date header is
// missing or unparsable.
func ParseReader(r io.Reader, internalDate time.Time) (*models.Mail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer func() { _ = mr.Close() }()

	email := &models.Mail{
		Attachments: []string{},
		TraceID:     uuid.New().String(),
	}

	header := mr.Header

	// Return-Path carries the envelope sender; From is the fallback
	email.Sender = extractEmailAddress(header.Get("Return-Path"))
	if email.Sender == "" {
		if fromList, err := header.AddressList("From"); err == nil && len(fromList) > 0 {
			email.Sender = fromList[0].Address
		} else {
			email.Sender = extractEmailAddress(header.Get("From"))
		}
	}
	if email.Sender == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrMalformed)
	}

	if !header.Has("Subject") {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	decodedSubject, err := DecodeHeader(header.Get("Subject"))
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrMalformed, err)
	}
	email.Subject = decodedSubject

	date, err := header.Date()
	if err != nil || date.IsZero() {
		date = internalDate
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: missing date", ErrMalformed)
	}
	email.Date = date.UTC()

	var text, html strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, err := h.ContentType()
			if err != nil {
				continue
			}
			var dst *strings.Builder
			switch contentType {
			case "text/plain":
				dst = &text
			case "text/html":
				dst = &html
			default:
				continue
			}
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: reading %s part: %v", ErrMalformed, contentType, err)
			}
			dst.Write(body)
		case *mail.AttachmentHeader:
			if filename, err := h.Filename(); err == nil && filename != "" {
				email.Attachments = append(email.Attachments, filename)
			}
		}
	}

	email.Text = text.String()
	email.HTML = html.String()
	return email, nil
}

// Simple regex to extract email address from a header, which may contain name and email
func extractEmailAddress(fromHeader string) string {
	return emailAddressRe.FindString(fromHeader)
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}
