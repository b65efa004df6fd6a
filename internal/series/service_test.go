package series

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestServiceAddInputValidation(t *testing.T) {
	p := &fakeProvider{}
	n := &fakeNotifier{}
	svc := NewService(newTestStore(p), nil, n, nil, nil)
	ctx := context.Background()

	_, err := svc.AddInput(ctx, "2024-01-01", "abc")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "temperature" {
		t.Fatalf("expected temperature ValidationError, got %v", err)
	}
	if kind, count := n.last(); kind != string(KindValidation) || count != 1 {
		t.Fatalf("expected one validation notification, got %q (%d)", kind, count)
	}
	if upserts, _, _ := p.calls(); upserts != 0 {
		t.Fatalf("expected no provider call, got %d", upserts)
	}
	if len(svc.Entries()) != 0 {
		t.Fatal("expected series unchanged")
	}

	if _, err := svc.AddInput(ctx, "2024-02-30", "37"); !errors.As(err, &verr) || verr.Field != "date" {
		t.Fatalf("expected date ValidationError, got %v", err)
	}
}

func TestServiceRejectNotifies(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(newTestStore(&fakeProvider{}), nil, n, nil, nil)

	in := &ValidationError{Field: "body", Reason: "invalid JSON"}
	if err := svc.Reject(in); err != in {
		t.Fatalf("expected the same error back, got %v", err)
	}
	if kind, count := n.last(); kind != string(KindValidation) || count != 1 {
		t.Fatalf("expected one validation notification, got %q (%d)", kind, count)
	}
}

func TestServiceAddInputParsesForm(t *testing.T) {
	svc := NewService(newTestStore(&fakeProvider{}), nil, nil, nil, nil)

	got, err := svc.AddInput(context.Background(), "", " 37,4 ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(got) != 1 || got[0].Temperature != 37.4 || got[0].Date != MustDate("2024-01-10") {
		t.Fatalf("unexpected series %+v", got)
	}
}

func TestParseTemperature(t *testing.T) {
	for _, in := range []string{"", "abc", "NaN", "Inf", "-inf", "37.5.1", "0x1p5", "0x25", "3_7", "1e999"} {
		if _, err := ParseTemperature(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	for in, want := range map[string]float64{"0": 0, "-12.5": -12.5, "36,6": 36.6, "38": 38, "+37": 37, "3.7e1": 37} {
		got, err := ParseTemperature(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %v, got %v (%v)", in, want, got, err)
		}
	}
}

func TestServiceProviderErrorsNotify(t *testing.T) {
	p := &fakeProvider{upsertErr: errBoom}
	n := &fakeNotifier{}
	svc := NewService(newTestStore(p), nil, n, nil, nil)

	if _, err := svc.Add(context.Background(), MustDate("2024-01-01"), 37); err == nil {
		t.Fatal("expected error")
	}
	if kind, _ := n.last(); kind != string(KindProvider) {
		t.Fatalf("expected provider notification, got %q", kind)
	}

	if _, err := svc.Delete(context.Background(), MustDate("2024-01-01")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, count := n.last(); count != 2 {
		t.Fatalf("expected 2 notifications, got %d", count)
	}
}

func TestServiceSignInLoadsAndSignOutResets(t *testing.T) {
	p := &fakeProvider{records: []Record{{Date: "2024-01-01", Temperature: temp(36.5)}}}
	id := &fakeIdentity{}
	store := NewStore(p, StoreConfig{Identity: id, RequireAuth: true})
	svc := NewService(store, id, nil, nil, nil)
	ctx := context.Background()

	if svc.Status().SignedIn {
		t.Fatal("expected signed out")
	}
	if err := svc.SignIn(ctx); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	st := svc.Status()
	if !st.SignedIn || st.Entries != 1 || st.Days != 1 || st.Loading {
		t.Fatalf("unexpected status %+v", st)
	}

	svc.SignOut()
	if st := svc.Status(); st.SignedIn || st.Entries != 0 {
		t.Fatalf("unexpected status after sign out %+v", st)
	}
}

func TestServiceSignInFailure(t *testing.T) {
	p := &fakeProvider{}
	id := &fakeIdentity{err: errBoom}
	n := &fakeNotifier{}
	svc := NewService(NewStore(p, StoreConfig{Identity: id, RequireAuth: true}), id, n, nil, nil)

	err := svc.SignIn(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if kind, _ := n.last(); kind != string(KindAuth) {
		t.Fatalf("expected auth notification, got %q", kind)
	}
	if _, _, lists := p.calls(); lists != 0 {
		t.Fatalf("expected no fetch, got %d", lists)
	}
}

func TestServiceLoadIsSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 8)
	p := &fakeProvider{
		records: []Record{{Date: "2024-01-01", Temperature: temp(36.5)}},
		listHook: func() {
			entered <- struct{}{}
			<-release
		},
	}
	svc := NewService(newTestStore(p), nil, nil, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = svc.Load(ctx)
	}()
	<-entered

	if !svc.Status().Loading {
		t.Fatal("expected loading while fetch is in flight")
	}

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Load(ctx)
		}()
	}
	// Give the extra callers time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if _, _, lists := p.calls(); lists != 1 {
		t.Fatalf("expected 1 fetch, got %d", lists)
	}
	if svc.Status().Loading {
		t.Fatal("expected loading cleared")
	}
}

func TestServiceRefreshSkipsWhenSignedOut(t *testing.T) {
	p := &fakeProvider{}
	id := &fakeIdentity{}
	svc := NewService(NewStore(p, StoreConfig{Identity: id, RequireAuth: true}), id, nil, nil, nil)

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, _, lists := p.calls(); lists != 0 {
		t.Fatalf("expected no fetch while signed out, got %d", lists)
	}
}

type fakeRecorder struct {
	mu      sync.Mutex
	ops     []string
	entries int
	days    int
}

func (r *fakeRecorder) ObserveOperation(op string, err error, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *fakeRecorder) SetSeriesSize(entries, days int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries, r.days = entries, days
}

func TestServiceRecordsMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewService(newTestStore(&fakeProvider{}), nil, nil, rec, nil)
	ctx := context.Background()

	_, _ = svc.Add(ctx, MustDate("2024-01-01"), 36.5)
	_, _ = svc.Add(ctx, MustDate("2024-01-05"), 37.5)
	_, _ = svc.Delete(ctx, MustDate("2024-01-05"))
	_ = svc.Load(ctx)

	want := []string{OpUpsert, OpUpsert, OpDelete, OpFetch}
	if len(rec.ops) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.ops)
	}
	for i := range want {
		if rec.ops[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, rec.ops)
		}
	}
	if rec.entries != 0 || rec.days != 0 {
		t.Fatalf("expected empty series after load, got %d/%d", rec.entries, rec.days)
	}
}
