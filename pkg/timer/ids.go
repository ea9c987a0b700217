package timer

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrExhausted  = errors.New("notification ids exhausted")
	ErrInUse      = errors.New("notification id already in use")
	ErrOutOfRange = errors.New("notification id out of range")
)

// Pool hands out notification ids in 1..size. An id stays taken until it is
// released, so no two live occurrences share one.
type Pool struct {
	mu   sync.Mutex
	size int
	used map[int]bool
	next int
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size, used: make(map[int]bool), next: 1}
}

// Acquire returns the next free id, scanning round-robin from the last one
func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		id := (p.next-1+i)%p.size + 1
		if !p.used[id] {
			p.used[id] = true
			p.next = id%p.size + 1
			return id, nil
		}
	}
	return 0, ErrExhausted
}

// Release returns id to the pool. Unknown ids are ignored.
func (p *Pool) Release(id int) {
	p.mu.Lock()
	delete(p.used, id)
	p.mu.Unlock()
}

// Reserve marks an id loaded from storage as taken
func (p *Pool) Reserve(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id < 1 || id > p.size {
		return fmt.Errorf("%w: %d outside 1..%d", ErrOutOfRange, id, p.size)
	}
	if p.used[id] {
		return fmt.Errorf("%w: %d", ErrInUse, id)
	}
	p.used[id] = true
	return nil
}

func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used)
}
