package series

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service wires user intents to the Store, drives the loading state and
// routes every failure into the notification channel.
type Service struct {
	store    *Store
	identity Identity
	notifier Notifier
	metrics  Recorder
	logger   *slog.Logger

	loads   singleflight.Group
	loading atomic.Bool
}

// NewService creates a new Service. identity, notifier and metrics may be nil.
func NewService(store *Store, identity Identity, notifier Notifier, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		identity: identity,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Load fetches the whole series from the provider. Concurrent callers share
// one in-flight fetch.
func (s *Service) Load(ctx context.Context) error {
	_, err, _ := s.loads.Do("load", func() (interface{}, error) {
		s.loading.Store(true)
		defer s.loading.Store(false)

		start := time.Now()
		entries, err := s.store.Load(ctx)
		s.observe(OpFetch, err, start)
		if err != nil {
			if !errors.Is(err, ErrStaleSession) {
				s.report(err)
			}
			return nil, err
		}
		s.logger.Info("series loaded", "entries", len(entries))
		return nil, nil
	})
	return err
}

// Refresh re-reads the series in the background. It does nothing while a
// load is running or nobody is signed in, and keeps the current series if
// the provider fails.
func (s *Service) Refresh(ctx context.Context) error {
	if s.loading.Load() || !s.SignedIn() {
		return nil
	}
	start := time.Now()
	_, err := s.store.Refresh(ctx)
	s.observe(OpFetch, err, start)
	if err != nil && !errors.Is(err, ErrStaleSession) {
		s.report(err)
	}
	return err
}

// Add records a reading. A zero date means today.
func (s *Service) Add(ctx context.Context, date Date, temperature float64) ([]Entry, error) {
	start := time.Now()
	entries, err := s.store.Add(ctx, date, temperature)
	s.observe(OpUpsert, err, start)
	if err != nil {
		s.report(err)
	}
	return entries, err
}

// AddInput parses raw form values and records the reading. An empty date
// means today; a comma is accepted as the decimal separator.
func (s *Service) AddInput(ctx context.Context, date, temperature string) ([]Entry, error) {
	temp, err := ParseTemperature(temperature)
	if err != nil {
		s.report(err)
		return nil, err
	}

	var d Date
	if strings.TrimSpace(date) != "" {
		if d, err = ParseDate(date); err != nil {
			verr := &ValidationError{Field: "date", Value: date, Reason: "use YYYY-MM-DD"}
			s.report(verr)
			return nil, verr
		}
	}
	return s.Add(ctx, d, temp)
}

// Delete removes the reading for date.
func (s *Service) Delete(ctx context.Context, date Date) ([]Entry, error) {
	start := time.Now()
	entries, err := s.store.Delete(ctx, date)
	s.observe(OpDelete, err, start)
	if err != nil {
		s.report(err)
	}
	return entries, err
}

// SignIn signs in through the identity provider and loads the series.
func (s *Service) SignIn(ctx context.Context) error {
	if s.identity != nil && !s.identity.IsSignedIn() {
		if err := s.identity.SignIn(ctx); err != nil {
			aerr := &AuthError{Err: err}
			s.report(aerr)
			return aerr
		}
	}
	return s.Load(ctx)
}

// SignOut ends the session and clears the series. Loads still in flight
// are discarded when they complete.
func (s *Service) SignOut() {
	if s.identity != nil {
		s.identity.SignOut()
	}
	s.store.Reset()
	s.logger.Info("signed out")
}

func (s *Service) SignedIn() bool {
	return s.identity == nil || s.identity.IsSignedIn()
}

func (s *Service) Status() Status {
	entries := s.store.Entries()
	return Status{
		Loading:  s.loading.Load(),
		SignedIn: s.SignedIn(),
		Entries:  len(entries),
		Days:     len(Densify(entries)),
	}
}

func (s *Service) Entries() []Entry {
	return s.store.Entries()
}

func (s *Service) Dense() []DenseEntry {
	return s.store.Dense()
}

func (s *Service) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.store.Subscribe(fn)
}

// Reject reports an error raised before the request reached the Service,
// such as a malformed request body, and returns it unchanged.
func (s *Service) Reject(err error) error {
	s.report(err)
	return err
}

func (s *Service) report(err error) {
	kind := KindOf(err)
	s.logger.Warn("operation failed", "kind", kind, "error", err)
	if s.notifier != nil {
		s.notifier.Notify(string(kind), err.Error())
	}
}

func (s *Service) observe(op string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(op, err, time.Since(start))
	entries := s.store.Entries()
	s.metrics.SetSeriesSize(len(entries), len(Densify(entries)))
}

// ParseTemperature parses a reading typed by the user. Only plain decimal
// notation is accepted, with either '.' or ',' as the separator.
func ParseTemperature(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &ValidationError{Field: "temperature", Reason: "is required"}
	}
	s = strings.Replace(s, ",", ".", 1)
	// ParseFloat also takes hex floats, underscores, NaN and Inf.
	if strings.IndexFunc(s, notDecimal) >= 0 {
		return 0, &ValidationError{Field: "temperature", Value: raw, Reason: "not a number"}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: "temperature", Value: raw, Reason: "not a number"}
	}
	return v, nil
}

func notDecimal(r rune) bool {
	return !strings.ContainsRune("0123456789+-.eE", r)
}
