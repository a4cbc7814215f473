package inventory

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Recorder receives engine events. The prometheus registry in package metrics implements it.
type Recorder interface {
	ObserveBalance(method CalculationMethod, elapsed time.Duration)
	NegativeAggregate(groupingKey string)
	ValidationRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBalance(CalculationMethod, time.Duration) {}
func (nopRecorder) NegativeAggregate(string)                        {}
func (nopRecorder) ValidationRejected(string)                       {}

// Engine computes balances, opening stock, breakdowns and palti/sale validations over a Store.
// It holds no ledger state of its own; build one per request or per transaction.
type Engine struct {
	store     Store
	catalog   *Catalog
	logger    *logrus.Logger
	recorder  Recorder
	packaging *PackagingResolver
	locations *LocationClassifier
}

type Option func(*Engine)

func WithCatalog(c *Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	e := &Engine{
		store:    store,
		catalog:  DefaultCatalog(),
		logger:   silent,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.packaging = NewPackagingResolver(store)
	e.locations = NewLocationClassifier(store)
	return e
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

func (e *Engine) ResolvePackaging(ctx context.Context, q PackagingQuery) (*PackagingMatch, error) {
	return e.packaging.Resolve(ctx, q)
}

func (e *Engine) IsDirectLoad(ctx context.Context, locationCode string) (bool, error) {
	return e.locations.IsDirectLoad(ctx, locationCode)
}

// BuildVarietyPredicate prefers the outturn reference when both are given.
func (e *Engine) BuildVarietyPredicate(ctx context.Context, sel VarietySelector, mode MatchMode) (VarietyPredicate, error) {
	if sel.OutturnId != nil && *sel.OutturnId > 0 {
		o, err := e.store.OutturnById(ctx, *sel.OutturnId)
		if err != nil {
			return nil, wrapStoreError("outturn lookup", err)
		}
		return NewOutturnPredicate(*o), nil
	}
	return e.catalog.NewTextPredicate(sel.Text, mode)
}
