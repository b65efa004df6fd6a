package series

import (
	"context"
	"errors"
	"sync"
)

var errBoom = errors.New("boom")

type fakeProvider struct {
	mu sync.Mutex

	records []Record

	listErr   error
	upsertErr error
	deleteErr error

	// listHook runs before List returns, outside the lock.
	listHook func()
	// upsertHook runs before Upsert returns, outside the lock. A non-nil
	// result replaces upsertErr.
	upsertHook func(e Entry) error

	upserts []Entry
	deletes []Date
	lists   int
}

func (p *fakeProvider) List(ctx context.Context) ([]Record, error) {
	p.mu.Lock()
	p.lists++
	hook := p.listHook
	records := append([]Record(nil), p.records...)
	err := p.listErr
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (p *fakeProvider) Upsert(ctx context.Context, e Entry) error {
	p.mu.Lock()
	p.upserts = append(p.upserts, e)
	hook := p.upsertHook
	err := p.upsertErr
	p.mu.Unlock()

	if hook != nil {
		if herr := hook(e); herr != nil {
			return herr
		}
	}
	return err
}

func (p *fakeProvider) Delete(ctx context.Context, d Date) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, d)
	return p.deleteErr
}

func (p *fakeProvider) calls() (upserts, deletes, lists int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.upserts), len(p.deletes), p.lists
}

type fakeIdentity struct {
	mu       sync.Mutex
	signedIn bool
	signIns  int
	err      error
}

func (i *fakeIdentity) IsSignedIn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.signedIn
}

func (i *fakeIdentity) SignIn(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.signIns++
	if i.err != nil {
		return i.err
	}
	i.signedIn = true
	return nil
}

func (i *fakeIdentity) SignOut() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.signedIn = false
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
	msgs  []string
}

func (n *fakeNotifier) Notify(kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.msgs = append(n.msgs, message)
}

func (n *fakeNotifier) last() (string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.kinds) == 0 {
		return "", 0
	}
	return n.kinds[len(n.kinds)-1], len(n.kinds)
}

func temp(v float64) *float64 { return &v }
