package notify

import "context"

// Sender delivers one notice to one chat. link, when set, is attached as a button.
type Sender interface {
	Send(ctx context.Context, chatID int64, text, link string) error
}
