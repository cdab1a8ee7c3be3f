// Package watermark persists, per mailbox identity, the highest IMAP UID that
// has already been processed.
package watermark

import (
	"context"
	"sync"
)

// Store is durable key to UID storage. Load reports ok=false for a mailbox that
// was never synchronized.
type Store interface {
	Load(ctx context.Context, mailbox string) (uid uint32, ok bool, err error)
	Save(ctx context.Context, mailbox string, uid uint32) error
}

// MemoryStore keeps watermarks in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	uids map[string]uint32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{uids: map[string]uint32{}}
}

func (s *MemoryStore) Load(_ context.Context, mailbox string) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.uids[mailbox]
	return uid, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, mailbox string, uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids[mailbox] = uid
	return nil
}
