package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aethernet/indexer/internal/metrics"
	"github.com/aethernet/indexer/internal/registry"
	"github.com/aethernet/indexer/internal/store"
)

var log = logging.Logger("reconciler")

type config struct {
	interval     time.Duration
	jitter       float64
	fetchTimeout time.Duration
	applyTimeout time.Duration
}

type Option func(*config)

// WithJitter spreads each scheduled interval by up to the given fraction.
func WithJitter(fraction float64) Option {
	return func(c *config) {
		c.jitter = fraction
	}
}

// WithTimeouts bounds the two suspension points of a cycle: the registry
// fetch and the store transaction.
func WithTimeouts(fetch, apply time.Duration) Option {
	return func(c *config) {
		if fetch > 0 {
			c.fetchTimeout = fetch
		}
		if apply > 0 {
			c.applyTimeout = apply
		}
	}
}

// Reconciler periodically brings the store into agreement with the registry.
// Cycles never overlap: the next one is scheduled only after the current one
// has fully resolved.
type Reconciler struct {
	cfg      config
	registry registry.Client
	store    store.Store
	bo       *backoff.ExponentialBackOff
	stopCh   chan struct{}
	stopOnce sync.Once

	mtx          sync.RWMutex
	lastSuccess  time.Time
	lastTotal    int64
	bootstrapped bool
}

func New(reg registry.Client, sto store.Store, interval time.Duration, opts ...Option) (*Reconciler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}

	cfg := config{
		interval:     interval,
		fetchTimeout: 30 * time.Second,
		applyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	bo.MaxInterval = 10 * interval
	bo.MaxElapsedTime = 0 // retry forever; the registry owes us no deadline
	bo.Reset()

	return &Reconciler{
		cfg:      cfg,
		registry: reg,
		store:    sto,
		bo:       bo,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs reconciliation cycles until the context is cancelled or Stop is
// called. Failed cycles reschedule with capped exponential backoff; a success
// resets the backoff and returns to the regular interval.
func (r *Reconciler) Start(ctx context.Context) {
	log.Infof("reconciler started with interval %v", r.cfg.interval)

	for {
		err := r.Reconcile(ctx)
		if err != nil && ctx.Err() != nil {
			log.Info("reconciler stopping due to context cancellation")
			return
		}

		var delay time.Duration
		if err != nil {
			delay = r.bo.NextBackOff()
			log.Errorf("reconciliation cycle failed, retrying in %v: %v", delay, err)
		} else {
			r.bo.Reset()
			delay = r.jittered(r.cfg.interval)
		}

		select {
		case <-ctx.Done():
			log.Info("reconciler stopping due to context cancellation")
			return
		case <-r.stopCh:
			log.Info("reconciler stopping")
			return
		case <-time.After(delay):
		}
	}
}

func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Reconcile runs one fetch-diff-apply cycle. The fetch must fully complete
// before any store mutation begins; a fetch failure therefore leaves the
// store untouched.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	fetchCtx, cancelFetch := context.WithTimeout(ctx, r.cfg.fetchTimeout)
	defer cancelFetch()

	remote, err := r.registry.FetchAll(fetchCtx)
	if err != nil {
		r.recordCycle(ctx, "fetch_error")
		return fmt.Errorf("fetching registry snapshot: %w", err)
	}

	stored, err := r.store.ReadAllNodes(fetchCtx)
	if err != nil {
		r.recordCycle(ctx, "read_error")
		return fmt.Errorf("reading stored snapshot: %w", err)
	}

	d := computeDiff(stored, remote)

	if d.Empty() && r.upToDate(d.NewTotal) {
		log.Debugf("registry unchanged at %d nodes, nothing to apply", d.NewTotal)
		r.markSuccess(ctx, d.NewTotal)
		return nil
	}

	// Detach the apply from the parent so shutdown never kills a transaction
	// mid-commit; the store resolves it within applyTimeout either way.
	applyCtx, cancelApply := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.applyTimeout)
	defer cancelApply()

	if err := r.store.ApplyReconciliation(applyCtx, d.Upserts, d.Deletes, d.NewTotal); err != nil {
		if errors.Is(err, store.ErrConstraint) {
			// Malformed remote data will fail identically on every retry.
			// Surface it as an alert condition instead of burying it in the
			// retry loop.
			metrics.ConstraintAlerts.Add(ctx, 1)
			log.Errorf("ALERT: reconciliation rejected by store constraint, remote data needs attention: %v", err)
		}
		r.recordCycle(ctx, "apply_error")
		return fmt.Errorf("applying reconciliation: %w", err)
	}

	metrics.NodesUpserted.Add(ctx, int64(len(d.Upserts)))
	metrics.NodesDeleted.Add(ctx, int64(len(d.Deletes)))
	log.Infof("reconciled registry: %d upserted, %d deleted, %d total", len(d.Upserts), len(d.Deletes), d.NewTotal)

	r.markSuccess(ctx, d.NewTotal)
	return nil
}

// LastSuccess reports when the most recent cycle committed; ok is false
// before the first successful cycle.
func (r *Reconciler) LastSuccess() (time.Time, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.lastSuccess, r.bootstrapped
}

func (r *Reconciler) upToDate(total int64) bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.bootstrapped && r.lastTotal == total
}

func (r *Reconciler) markSuccess(ctx context.Context, total int64) {
	r.mtx.Lock()
	r.lastSuccess = time.Now()
	r.lastTotal = total
	r.bootstrapped = true
	r.mtx.Unlock()

	metrics.TotalNodes.Record(ctx, total)
	metrics.LastSuccessTimestamp.Record(ctx, float64(time.Now().Unix()))
	r.recordCycle(ctx, "success")
}

func (r *Reconciler) recordCycle(ctx context.Context, result string) {
	attrs := attribute.NewSet(attribute.String("result", result))
	metrics.ReconcileCycles.Add(ctx, 1, metric.WithAttributeSet(attrs))
}

func (r *Reconciler) jittered(interval time.Duration) time.Duration {
	if r.cfg.jitter <= 0 {
		return interval
	}
	spread := float64(interval) * r.cfg.jitter
	return interval + time.Duration((rand.Float64()*2-1)*spread)
}
