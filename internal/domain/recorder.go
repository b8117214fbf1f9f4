package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/progress/internal/catalog"
	"example.com/progress/internal/observability"
)

// Service is the progress engine exposed to the transport layers.
// It holds no mutable state of its own; the store is the single source
// of truth, so concurrent invocations need no in-process locking.
type Service struct {
	store        Store
	catalog      *catalog.Catalog
	maxRetries   int
	retryBase    time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithRetry bounds retries of transient store failures. maxRetries is the
// number of attempts after the first; base is the initial backoff delay.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.retryBase = base
	}
}

// WithStoreTimeout caps the duration of each store round-trip. Zero disables
// the cap (the caller's context still applies).
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs the engine over the given store and catalog.
func NewService(store Store, cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		store:      store,
		catalog:    cat,
		maxRetries: 2,
		retryBase:  100 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the engine's exercise catalog.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// RecordResult is the outcome of one applied log command.
type RecordResult struct {
	Exercise  catalog.Exercise
	PrevTotal int64
	NewTotal  int64
	Crossing  Crossing
}

// JustCrossed reports whether this command pushed the total across the goal.
func (r RecordResult) JustCrossed() bool {
	return r.Crossing == CrossingJust
}

// Record validates and applies a single log command. The increment, the
// last-update timestamp and the crossed flag are persisted as one atomic
// unit by the store, so two racing commands cannot both report a crossing
// and a concurrent summary cannot observe a half-applied record.
func (s *Service) Record(ctx context.Context, user UserIdentity, alias string, amount int64) (RecordResult, error) {
	if amount <= 0 {
		observability.RecordRejected("invalid_amount")
		return RecordResult{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if user.ID <= 0 {
		observability.RecordRejected("invalid_user")
		return RecordResult{}, fmt.Errorf("%w: got %d", ErrInvalidUser, user.ID)
	}

	ex, ok := s.catalog.Resolve(alias)
	if !ok {
		observability.RecordRejected("unknown_exercise")
		return RecordResult{}, fmt.Errorf("%w: %q", ErrUnknownExercise, alias)
	}

	res, err := s.applyWithRetry(ctx, user, ex, amount)
	if err != nil {
		return RecordResult{}, err
	}

	prevTotal := res.NewTotal - amount
	result := RecordResult{
		Exercise:  ex,
		PrevTotal: prevTotal,
		NewTotal:  res.NewTotal,
		Crossing:  Detect(prevTotal, res.NewTotal, ex.Goal, res.PrevCrossed),
	}

	observability.RecordProgress(ex.ID, s.now())
	if result.JustCrossed() {
		observability.RecordCrossing(ex.ID)
	}
	return result, nil
}

// applyWithRetry retries the atomic store update on transient failures only,
// with exponential backoff. Validation errors are never retried.
func (s *Service) applyWithRetry(ctx context.Context, user UserIdentity, ex catalog.Exercise, amount int64) (ApplyResult, error) {
	var res ApplyResult
	var err error

	for attempt := 0; ; attempt++ {
		res, err = s.apply(ctx, user, ex, amount)
		if err == nil || !errors.Is(err, ErrStoreUnavailable) || attempt >= s.maxRetries {
			return res, err
		}

		delay := s.retryBase << attempt
		select {
		case <-ctx.Done():
			return ApplyResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Service) apply(ctx context.Context, user UserIdentity, ex catalog.Exercise, amount int64) (ApplyResult, error) {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	started := s.now()
	res, err := s.store.Apply(ctx, user, ex.ID, amount, ex.Goal, s.now().UTC())
	observability.ObserveApply(time.Since(started), err == nil)
	return res, err
}

func (s *Service) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
