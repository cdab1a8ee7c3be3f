package models

import "time"

// Mail represents a normalized parsed email message
type Mail struct {
	UID         uint32
	Sender      string
	Subject     string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []string
	TraceID     string
}

// ArchivedMail is a Mail as persisted by the archive, identified by a stable id
type ArchivedMail struct {
	ID        int64
	Sender    string
	Date      time.Time
	Text      string
	HTML      string
	CreatedAt time.Time
}
