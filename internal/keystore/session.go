package keystore

import (
	"fmt"
	"sync"

	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/secretstore"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Session carries process-wide wallet state. The recently used account is
// persisted in the secret store so it survives restarts.
type Session struct {
	secrets secretstore.Store

	mu     sync.RWMutex
	recent fn.Option[model.Account]
}

// NewSession restores the recently used account. Failing to read the secret
// store is fatal: the engine cannot work without it.
func NewSession(secrets secretstore.Store) (*Session, error) {
	stored, err := secrets.Get(secretstore.RecentlyUsedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	s := &Session{
		secrets: secrets,
		recent:  fn.None[model.Account](),
	}
	stored.WhenSome(func(addr string) {
		account, err := model.ParseAccount(addr)
		if err != nil {
			log.Warnf("Ignoring invalid recently used account %q", addr)
			return
		}
		s.recent = fn.Some(account)
	})

	return s, nil
}

// Recent returns the last used account, if any
func (s *Session) Recent() fn.Option[model.Account] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent
}

// SetRecent records account as the last used one
func (s *Session) SetRecent(account model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.secrets.Set(secretstore.RecentlyUsedKey, account.Key(), secretstore.AccessAfterFirstUnlock)
	if err != nil {
		return fmt.Errorf("failed to store recently used account: %w", err)
	}
	s.recent = fn.Some(account)
	return nil
}

// ClearIf forgets the recently used account if it is account
func (s *Session) ClearIf(account model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recent.IsNone() || !s.recent.UnsafeFromSome().Equal(account) {
		return nil
	}
	s.recent = fn.None[model.Account]()
	if err := s.secrets.Delete(secretstore.RecentlyUsedKey); err != nil {
		return fmt.Errorf("failed to clear recently used account: %w", err)
	}
	return nil
}
