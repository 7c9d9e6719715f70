package app

import (
	"context"
	"sync"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/apperror"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	conns  map[string]bool // id -> fails
	sent   map[string][][]byte
	broadc int
}

func newFakeBroadcaster(ids ...string) *fakeBroadcaster {
	f := &fakeBroadcaster{conns: map[string]bool{}, sent: map[string][][]byte{}}
	for _, id := range ids {
		f.conns[id] = false
	}
	return f
}

func (f *fakeBroadcaster) fail(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[id] = true
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadc++
	n := 0
	for id, fails := range f.conns {
		if fails {
			delete(f.conns, id)
			continue
		}
		f.sent[id] = append(f.sent[id], payload)
		n++
	}
	return n
}

func (f *fakeBroadcaster) SendTo(_ context.Context, id string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fails, ok := f.conns[id]
	if !ok {
		return apperror.New(apperror.CodeNotFound)
	}
	if fails {
		delete(f.conns, id)
		return apperror.New(apperror.CodeSendFailure)
	}
	f.sent[id] = append(f.sent[id], payload)
	return nil
}

func (f *fakeBroadcaster) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeBroadcaster) received(id string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[id]
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) kinds() []domain.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Kind, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Kind
	}
	return out
}

func (r *recordingNotifier) last() domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes[len(r.notes)-1]
}

type staticPrices struct {
	table    domain.PriceTable
	defaults domain.PriceDefaults
}

func (s staticPrices) Prices() (domain.PriceTable, domain.PriceDefaults) {
	return s.table, s.defaults
}
