// Package bot implements the token-gated chat registration command.
package bot

import (
	"context"
	"crypto/subtle"
	"strings"
)

const (
	ReplyInvalidToken = "Invalid access token"
	ReplySubscribed   = "You are subscribed to mail notifications"
	ReplyAlreadyThere = "You are already subscribed to mail notifications"
)

// Registry records chats that asked for notifications
type Registry interface {
	AddChatID(ctx context.Context, chatID int64) (created bool, err error)
}

type Registrar struct {
	registry    Registry
	accessToken string
}

func NewRegistrar(registry Registry, accessToken string) *Registrar {
	return &Registrar{registry: registry, accessToken: accessToken}
}

// HandleStart processes "/start <token>" from chatID and returns the reply to send.
// A wrong token leaves the roster untouched. The error is non-nil only when the
// registry fails.
func (r *Registrar) HandleStart(ctx context.Context, chatID int64, text string) (string, error) {
	if !r.tokenPresent(text) {
		return ReplyInvalidToken, nil
	}

	created, err := r.registry.AddChatID(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !created {
		return ReplyAlreadyThere, nil
	}
	return ReplySubscribed, nil
}

func (r *Registrar) tokenPresent(text string) bool {
	if r.accessToken == "" {
		return false
	}
	want := []byte(r.accessToken)
	for _, field := range strings.Fields(text) {
		if subtle.ConstantTimeCompare([]byte(field), want) == 1 {
			return true
		}
	}
	return false
}
