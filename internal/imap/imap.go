package imap

import (
	"github.com/emersion/go-imap"
)

// Client is the subset of an IMAP session the synchronizer needs. UIDs are
// used throughout so results stay valid across sessions.
type Client interface {
	Connect(server string) error
	Login(user, password string) error
	SelectMailbox(name string, readOnly bool) (*imap.MailboxStatus, error)
	SearchUnseenUIDs(minUID uint32) ([]uint32, error)
	FetchMessage(uid uint32) (*imap.Message, error)
	Close() error
}
