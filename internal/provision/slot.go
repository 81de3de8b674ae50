package provision

import (
	"sync"

	"github.com/dokzlo13/lampd/internal/credentials"
)

// Slot holds at most one credential submission. The capture endpoint offers
// it, commits once the reply is on the wire, and only then does the poll loop
// see it.
type Slot struct {
	mu        sync.Mutex
	creds     *credentials.Credentials
	committed bool
}

// Offer reserves the slot for c and reports whether it was accepted. The
// returned commit makes c visible to Take.
func (s *Slot) Offer(c credentials.Credentials) (commit func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds != nil {
		return nil, false
	}
	s.creds = &c
	return func() {
		s.mu.Lock()
		s.committed = true
		s.mu.Unlock()
	}, true
}

// Take returns the committed credentials, if any. The slot stays filled.
func (s *Slot) Take() (credentials.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil || !s.committed {
		return credentials.Credentials{}, false
	}
	return *s.creds, true
}
