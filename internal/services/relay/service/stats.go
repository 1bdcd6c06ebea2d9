package service

import (
	"sync"

	dom "otprelay/internal/services/relay/domain"
)

// statsBox publishes the controller state to readers on other goroutines
type statsBox struct {
	mu sync.Mutex
	s  dom.Stats
}

func (b *statsBox) init(s dom.Stats) {
	b.mu.Lock()
	b.s = s
	b.mu.Unlock()
}

func (b *statsBox) update(fn func(*dom.Stats)) {
	b.mu.Lock()
	fn(&b.s)
	b.mu.Unlock()
}

func (b *statsBox) snapshot() dom.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.s
	if b.s.LastReport != nil {
		r := *b.s.LastReport
		out.LastReport = &r
	}
	return out
}

// Stats returns a copy safe to read while cycles run
func (s *Svc) Stats() dom.Stats { return s.stats.snapshot() }

func (s *Svc) setPhase(p dom.Phase) {
	s.stats.update(func(st *dom.Stats) { st.Phase = p })
}
