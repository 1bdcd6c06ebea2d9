package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"otprelay/internal/adapters/panel"
	"otprelay/internal/core/sms"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	dom "otprelay/internal/services/relay/domain"
)

func row(ts, number, service, msg string) []any {
	return []any{ts, "Bangladesh-GP", number, service, msg, "0.01", ""}
}

func okPage(rows ...[]any) panel.Result {
	raw := make([]any, len(rows))
	for i, r := range rows {
		raw[i] = r
	}
	return panel.Result{Outcome: panel.OutcomeOK, Rows: raw, Total: len(rows)}
}

type step struct {
	res   panel.Result
	err   error
	panic any
	block bool
}

// scriptFetcher replays steps; the last one repeats
type scriptFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptFetcher) Fetch(ctx context.Context) (panel.Result, error) {
	f.mu.Lock()
	st := f.steps[min(f.calls, len(f.steps)-1)]
	f.calls++
	f.mu.Unlock()
	if st.panic != nil {
		panic(st.panic)
	}
	if st.block {
		<-ctx.Done()
		return panel.Result{Outcome: panel.OutcomeTransport}, ctx.Err()
	}
	return st.res, st.err
}

type sent struct{ dest, text string }

// fakeSender fails per destination according to fail, or per message when the text
// contains a failText key; nil entries succeed
type fakeSender struct {
	mu       sync.Mutex
	fail     map[string]error
	failText map[string]error
	sent     []sent
	hits     map[string]int
}

func (s *fakeSender) Send(_ context.Context, dest, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hits == nil {
		s.hits = map[string]int{}
	}
	s.hits[dest]++
	if err := s.fail[dest]; err != nil {
		return err
	}
	for sub, err := range s.failText {
		if err != nil && strings.Contains(text, sub) {
			return err
		}
	}
	s.sent = append(s.sent, sent{dest, text})
	return nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.text)
	}
	return out
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]string
	saves   int
	loadErr []error
	saveErr []error
}

func (m *memStore) Load(_ context.Context, source string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.loadErr) > 0 {
		err := m.loadErr[0]
		m.loadErr = m.loadErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return append([]string(nil), m.data[source]...), nil
}

func (m *memStore) Save(_ context.Context, source string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saveErr) > 0 {
		err := m.saveErr[0]
		m.saveErr = m.saveErr[1:]
		if err != nil {
			return err
		}
	}
	if m.data == nil {
		m.data = map[string][]string{}
	}
	m.data[source] = append([]string(nil), ids...)
	m.saves++
	return nil
}

func (m *memStore) ids(source string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.data[source]...)
}

type memJournal struct {
	mu   sync.Mutex
	rows []dom.Delivery
	err  error
}

func (j *memJournal) Append(_ context.Context, d dom.Delivery) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, d)
	return j.err
}

type rig struct {
	svc     *Svc
	fetch   *scriptFetcher
	send    *fakeSender
	store   *memStore
	journal *memJournal
}

func newRig(t *testing.T, steps []step, mutate func(*Config)) *rig {
	t.Helper()
	cfg := Config{
		Source:         "client",
		Interval:       10 * time.Second,
		Destinations:   []string{"-1001", "-1002"},
		SendAttempts:   3,
		SendRetryDelay: time.Millisecond,
		CycleTimeout:   time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r := &rig{
		fetch:   &scriptFetcher{steps: steps},
		send:    &fakeSender{fail: map[string]error{}},
		store:   &memStore{},
		journal: &memJournal{},
	}
	svc, err := New(cfg, Deps{
		Fetcher:   r.fetch,
		Sender:    r.send,
		Store:     r.store,
		Journal:   r.journal,
		Validator: sms.Validator{Profile: sms.Client, Location: time.UTC},
		Log:       logger.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.svc = svc
	return r
}

var errDown = perr.Unavailablef("api.telegram.org unreachable")
