package series

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// StoreConfig bundles the collaborators and policies of a Store.
type StoreConfig struct {
	// Identity is consulted before mutations when RequireAuth is set.
	Identity    Identity
	RequireAuth bool

	// Location decides which calendar day "today" is. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time

	Logger *slog.Logger
}

// Store owns the sparse series. It is the only writer of the entries slice;
// everyone else reads copies.
//
// Mutations are optimistic: the local series changes first, then the provider
// is called, and a provider failure rolls the change back unless a later
// write to the same date or a session reset superseded it.
type Store struct {
	mu sync.RWMutex

	// sorted ascending by date, unique by date
	entries []Entry

	// bumped by Reset; results captured under an older generation are dropped
	generation uint64

	// writes holds the token of the last local write per date. A failed
	// write only rolls back while its token is still current.
	writes   map[Date]uint64
	writeSeq uint64

	// pending counts add/delete calls waiting on the provider; mutations
	// counts every one ever started. Background refreshes that overlap a
	// mutation are discarded.
	pending   int
	mutations uint64

	subs    map[int]func(Snapshot)
	nextSub int

	provider    Provider
	identity    Identity
	requireAuth bool
	loc         *time.Location
	now         func() time.Time
	logger      *slog.Logger
}

// NewStore creates an empty Store backed by provider.
func NewStore(provider Provider, cfg StoreConfig) *Store {
	s := &Store{
		subs:        make(map[int]func(Snapshot)),
		writes:      make(map[Date]uint64),
		provider:    provider,
		identity:    cfg.Identity,
		requireAuth: cfg.RequireAuth,
		loc:         cfg.Location,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Today returns the current calendar day in the store's location.
func (s *Store) Today() Date {
	return DateOf(s.now().In(s.loc))
}

// Add inserts or replaces the reading for date. A zero date means today.
func (s *Store) Add(ctx context.Context, date Date, temperature float64) ([]Entry, error) {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return nil, &ValidationError{Field: "temperature", Reason: "must be a finite number"}
	}
	if date.IsZero() {
		date = s.Today()
	}
	if err := s.ensureSignedIn(ctx); err != nil {
		return nil, err
	}

	entry := Entry{Date: date, Temperature: temperature}

	s.mu.Lock()
	gen := s.generation
	s.beginLocked()
	prev, hadPrev := s.putLocked(entry)
	prevToken, hadToken := s.writes[date]
	s.writeSeq++
	token := s.writeSeq
	s.writes[date] = token
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	defer s.end()

	if err := s.provider.Upsert(ctx, entry); err != nil {
		s.logger.Warn("upsert failed; rolling back", "date", date, "error", err)
		s.rollback(gen, func() bool {
			if s.writes[date] != token {
				return false
			}
			if hadPrev {
				s.putLocked(prev)
			} else {
				s.removeLocked(date)
			}
			if hadToken {
				s.writes[date] = prevToken
			} else {
				delete(s.writes, date)
			}
			return true
		})
		return s.Entries(), &ProviderError{Op: OpUpsert, Date: date, Err: err}
	}

	return s.Entries(), nil
}

// Delete removes the reading for date.
func (s *Store) Delete(ctx context.Context, date Date) ([]Entry, error) {
	if date.IsZero() {
		return nil, &ValidationError{Field: "date", Reason: "is required"}
	}
	if _, ok := s.find(date); !ok {
		return s.Entries(), &ProviderError{Op: OpDelete, Date: date, Err: ErrNotFound}
	}
	if err := s.ensureSignedIn(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Another call may have removed it while we were signing in.
	removed, ok := s.findLocked(date)
	if !ok {
		s.mu.Unlock()
		return s.Entries(), &ProviderError{Op: OpDelete, Date: date, Err: ErrNotFound}
	}
	gen := s.generation
	s.beginLocked()
	removedToken, hadToken := s.writes[date]
	s.removeLocked(date)
	delete(s.writes, date)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	defer s.end()

	err := s.provider.Delete(ctx, date)
	switch {
	case err == nil:
		return s.Entries(), nil
	case errors.Is(err, ErrNotFound):
		// The provider agrees the entry is gone; keep the local removal.
		return s.Entries(), &ProviderError{Op: OpDelete, Date: date, Err: err}
	}

	s.logger.Warn("delete failed; restoring entry", "date", date, "error", err)
	s.rollback(gen, func() bool {
		if _, exists := s.findLocked(date); exists {
			return false
		}
		s.putLocked(removed)
		if hadToken {
			s.writes[date] = removedToken
		}
		return true
	})
	return s.Entries(), &ProviderError{Op: OpDelete, Date: date, Err: err}
}

// Load replaces the series with the provider's contents. On failure the
// series is left empty.
func (s *Store) Load(ctx context.Context) ([]Entry, error) {
	return s.load(ctx, false)
}

// Refresh is Load for background resyncs. It keeps the current series when
// the provider fails, and skips or discards a listing that overlaps an add
// or delete still waiting on the provider.
func (s *Store) Refresh(ctx context.Context) ([]Entry, error) {
	return s.load(ctx, true)
}

func (s *Store) load(ctx context.Context, background bool) ([]Entry, error) {
	if err := s.ensureSignedIn(ctx); err != nil {
		return nil, err
	}
	clearOnError := !background

	s.mu.RLock()
	gen := s.generation
	mutations := s.mutations
	busy := s.pending > 0
	s.mu.RUnlock()

	if background && busy {
		s.logger.Debug("skipping refresh while a write is pending")
		return s.Entries(), nil
	}

	records, err := s.provider.List(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Info("discarding load result from previous session")
		return nil, ErrStaleSession
	}
	if background && (s.pending > 0 || s.mutations != mutations) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.Debug("discarding refresh that overlapped a write")
		return snap.Entries, nil
	}
	if err != nil {
		if clearOnError {
			s.entries = nil
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if clearOnError {
			s.publish(snap)
		}
		return snap.Entries, &ProviderError{Op: OpFetch, Err: err}
	}
	s.entries = s.normalize(records)
	s.writes = make(map[Date]uint64)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return snap.Entries, nil
}

// Reset clears the series and starts a new session generation.
func (s *Store) Reset() {
	s.mu.Lock()
	s.generation++
	s.entries = nil
	s.writes = make(map[Date]uint64)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Entries returns a copy of the sparse series.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries)
}

// Dense returns the gap-filled view of the current series.
func (s *Store) Dense() []DenseEntry {
	return Densify(s.Entries())
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change.
// Callbacks run synchronously on the mutating goroutine and must not call
// back into the Store's mutating methods.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) ensureSignedIn(ctx context.Context) error {
	if !s.requireAuth || s.identity == nil || s.identity.IsSignedIn() {
		return nil
	}
	if err := s.identity.SignIn(ctx); err != nil {
		return &AuthError{Err: err}
	}
	return nil
}

func (s *Store) beginLocked() {
	s.pending++
	s.mutations++
}

func (s *Store) end() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
}

// rollback runs undo under the lock if the session is unchanged, and
// publishes when undo reports a change.
func (s *Store) rollback(gen uint64, undo func() bool) {
	s.mu.Lock()
	if gen != s.generation || !undo() {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) find(date Date) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(date)
}

func (s *Store) findLocked(date Date) (Entry, bool) {
	i, ok := s.indexLocked(date)
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

func (s *Store) indexLocked(date Date) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].Date.Before(date)
	})
	return i, i < len(s.entries) && s.entries[i].Date == date
}

// putLocked inserts e in date order, replacing any entry for the same date.
func (s *Store) putLocked(e Entry) (prev Entry, replaced bool) {
	i, ok := s.indexLocked(e.Date)
	if ok {
		prev = s.entries[i]
		s.entries[i] = e
		return prev, true
	}
	s.entries = append(s.entries, Entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
	return Entry{}, false
}

func (s *Store) removeLocked(date Date) {
	i, ok := s.indexLocked(date)
	if !ok {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Entries: cloneEntries(s.entries), Generation: s.generation}
}

func (s *Store) publish(snap Snapshot) {
	s.mu.RLock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(Snapshot{Entries: cloneEntries(snap.Entries), Generation: snap.Generation})
	}
}

// normalize drops records without a reading or with a malformed date, keeps
// the last record for each date and sorts the result.
func (s *Store) normalize(records []Record) []Entry {
	byDate := make(map[Date]float64, len(records))
	for _, r := range records {
		if r.Temperature == nil || math.IsNaN(*r.Temperature) || math.IsInf(*r.Temperature, 0) {
			continue
		}
		d, err := ParseDate(r.Date)
		if err != nil {
			s.logger.Warn("skipping record with invalid date", "date", r.Date, "error", err)
			continue
		}
		byDate[d] = *r.Temperature
	}

	entries := make([]Entry, 0, len(byDate))
	for d, t := range byDate {
		entries = append(entries, Entry{Date: d, Temperature: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	copy(out, in)
	return out
}
