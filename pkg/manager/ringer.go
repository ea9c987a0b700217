package manager

import (
	"sync"
	"time"

	"github.com/borgmon/alarm-clock/pkg/notify"
)

// ringing is the occurrence currently sounding
type ringing struct {
	UID            string
	NotificationID int
	FiredAt        time.Time

	session notify.Sound
}

type queuedFire struct {
	UID            string
	NotificationID int
}

// ringSlot holds at most one ringing alarm. claim and release are
// compare-and-swap operations: a release only succeeds for the exact entry
// that was claimed.
type ringSlot struct {
	mu      sync.Mutex
	current *ringing
	queue   []queuedFire
}

// claim sets r as the ringing alarm if nothing rings
func (s *ringSlot) claim(r *ringing) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return false
	}
	s.current = r
	return true
}

// release clears the slot if it still holds r
func (s *ringSlot) release(r *ringing) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil || s.current != r {
		return false
	}
	s.current = nil
	return true
}

// releaseUID clears the slot if uid is ringing and returns what was cleared
func (s *ringSlot) releaseUID(uid string) *ringing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.UID != uid {
		return nil
	}
	r := s.current
	s.current = nil
	return r
}

func (s *ringSlot) get() *ringing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *ringSlot) setSession(r *ringing, session notify.Sound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r {
		return false
	}
	r.session = session
	return true
}

// enqueue appends a fire unless the same occurrence is already waiting
func (s *ringSlot) enqueue(f queuedFire) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if q == f {
			return false
		}
	}
	s.queue = append(s.queue, f)
	return true
}

// next pops the oldest queued fire, but only while nothing rings
func (s *ringSlot) next() (queuedFire, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil || len(s.queue) == 0 {
		return queuedFire{}, false
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f, true
}

// drop removes every queued fire of uid
func (s *ringSlot) drop(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	for _, q := range s.queue {
		if q.UID != uid {
			kept = append(kept, q)
		}
	}
	s.queue = kept
}

func (s *ringSlot) queued() []queuedFire {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queuedFire(nil), s.queue...)
}
