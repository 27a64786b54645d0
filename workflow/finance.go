package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const financeLockKey = "finance:postings"

// ObjectCache is the JSON cache used for short lived read results.
type ObjectCache interface {
	GetObject(ctx context.Context, key string, dest any) (bool, error)
	SetObject(ctx context.Context, key string, obj any, exp time.Duration) error
}

// FinanceWorkflow owns deposits, expenses, meal rate aggregation and month finalization.
type FinanceWorkflow struct {
	store    store.Store
	logger   *logrus.Logger
	locker   Locker
	cache    ObjectCache
	cacheTTL time.Duration
	now      func() time.Time
	tracer   trace.Tracer
}

type FinanceOption func(*FinanceWorkflow)

// WithLocker replaces the default store lock used around finalize and undo.
func WithLocker(l Locker) FinanceOption {
	return func(w *FinanceWorkflow) {
		if l != nil {
			w.locker = l
		}
	}
}

func WithMealRateCache(cache ObjectCache, ttl time.Duration) FinanceOption {
	return func(w *FinanceWorkflow) {
		w.cache = cache
		w.cacheTTL = ttl
	}
}

func WithClock(now func() time.Time) FinanceOption {
	return func(w *FinanceWorkflow) {
		if now != nil {
			w.now = now
		}
	}
}

func WithTracer(tracer trace.Tracer) FinanceOption {
	return func(w *FinanceWorkflow) {
		if tracer != nil {
			w.tracer = tracer
		}
	}
}

func NewFinanceWorkflow(st store.Store, logger *logrus.Logger, opts ...FinanceOption) *FinanceWorkflow {
	w := &FinanceWorkflow{
		store:    st,
		logger:   logger,
		locker:   LockFunc(st.Lock),
		cacheTTL: time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer("dining-management-server/workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logrus.New()
	}
	return w
}

// acquireFinanceLock takes the posting lock. A lock still held by another
// posting when the wait runs out is reported as a Conflict.
func (w *FinanceWorkflow) acquireFinanceLock(ctx context.Context, funcName string, data any) (func(), error) {
	release, err := w.locker.Acquire(ctx, financeLockKey)
	if errors.Is(err, store.ErrLockBusy) {
		return nil, utils.Conflict("finance posting in progress; try again shortly")
	}
	if err != nil {
		config.LogError(w.logger, "finance.go", funcName, "acquiring finance lock", data, err)
		return nil, err
	}
	return release, nil
}

// notFound turns store.ErrNotFound into a typed NotFound error naming what.
func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return utils.NotFound("%s not found", what)
	}
	return err
}
