package githubapp

import (
	"context"
	"sync"
)

// InstallationToken is an opaque installation access token. GitHub does not
// tell us when it expires, so a token is assumed valid until a request
// using it is rejected with 401.
type InstallationToken string

// tokenManager owns the current installation access token shared by all
// concurrent requests.
//
// The token sits behind a read-write mutex so requests can read it without
// blocking each other. In the rare event the token expired, it is locked
// for writing to refresh it. sync.RWMutex blocks new readers once a writer
// is waiting, so a continuous stream of readers cannot starve a pending
// refresh.
type tokenManager struct {
	mu        sync.RWMutex
	token     InstallationToken
	bootstrap func(ctx context.Context) (InstallationToken, error)
}

func newTokenManager(bootstrap func(ctx context.Context) (InstallationToken, error)) *tokenManager {
	return &tokenManager{bootstrap: bootstrap}
}

// current returns a snapshot of the live token. The caller keeps it to
// detect, on a later 401, whether another goroutine refreshed the token in
// the meantime.
func (m *tokenManager) current() InstallationToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// set stores the initial token obtained at startup.
func (m *tokenManager) set(tok InstallationToken) {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
}

// refreshIfCurrent replaces the live token only if it still equals
// observed. If the tokens differ, another request already refreshed since
// observed was read, so the network round-trip is skipped and the live
// token returned as is. This is what keeps N concurrent requests that all
// saw the same expired token down to exactly one bootstrap exchange.
//
// On bootstrap failure the old token is left in place: a possibly stale
// token is still more useful than none.
func (m *tokenManager) refreshIfCurrent(ctx context.Context, observed InstallationToken) (InstallationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != observed {
		return m.token, nil
	}

	tok, err := m.bootstrap(ctx)
	if err != nil {
		return "", err
	}
	m.token = tok
	return tok, nil
}
