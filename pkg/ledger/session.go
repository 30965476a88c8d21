package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

// Config names the signing identity and bounds each phase of a session.
type Config struct {
	Identity        string // wallet label used to sign every transaction
	ConnectTimeout  time.Duration
	EvaluateTimeout time.Duration
	SubmitTimeout   time.Duration
}

// Manager hands out single-use sessions. It holds no connection state of its
// own; every session dials, binds and closes its own handle.
type Manager struct {
	cfg       Config
	wallet    wallet.Store
	connector Connector
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

func NewManager(cfg Config, store wallet.Store, connector Connector, logger *zap.SugaredLogger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Manager{
		cfg:       cfg,
		wallet:    store,
		connector: connector,
		logger:    logger,
		metrics:   metrics,
	}
}

// WithSession acquires a handle, runs fn against its contract and releases
// the handle on every exit path, including a panic in fn. Errors returned by
// fn are passed through unchanged.
func WithSession[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, c Contract) (T, error)) (T, error) {
	h, err := m.acquire(ctx)
	m.metrics.Acquisitions.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		m.logger.Warnw("ledger_session_failed", "identity", m.cfg.Identity, "err", err)
		var zero T
		return zero, err
	}

	m.metrics.OpenSessions.Inc()
	defer func() {
		m.metrics.OpenSessions.Dec()
		if cerr := h.Close(); cerr != nil {
			m.logger.Warnw("ledger_session_close_failed", "err", cerr)
		}
	}()

	return fn(ctx, &sessionContract{inner: h.Contract(), m: m})
}

// Submit runs a single mutating transaction in its own session.
func (m *Manager) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return WithSession(ctx, m, func(ctx context.Context, c Contract) ([]byte, error) {
		return c.Submit(ctx, tx, args...)
	})
}

// Evaluate runs a single query in its own session.
func (m *Manager) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return WithSession(ctx, m, func(ctx context.Context, c Contract) ([]byte, error) {
		return c.Evaluate(ctx, tx, args...)
	})
}

func (m *Manager) acquire(ctx context.Context) (Handle, error) {
	id, err := m.wallet.Get(m.cfg.Identity)
	if err != nil {
		msg := fmt.Sprintf("identity %q not found in wallet; register the user before retrying", m.cfg.Identity)
		if !errors.Is(err, wallet.ErrNotFound) {
			msg = fmt.Sprintf("identity %q could not be loaded", m.cfg.Identity)
		}
		return nil, newError(KindIdentityNotFound, "", msg, err)
	}

	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}

	h, err := m.connector.Connect(ctx, id)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, newError(KindConnection, "", "failed to connect to ledger", err)
	}
	m.logger.Debugw("ledger_session_opened", "identity", m.cfg.Identity, "msp", id.MSPID)
	return h, nil
}

// sessionContract bounds each call by the configured timeout, turns an
// expired deadline into KindTimeout and records call metrics.
type sessionContract struct {
	inner Contract
	m     *Manager
}

func (c *sessionContract) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return c.call(ctx, true, c.m.cfg.SubmitTimeout, tx, args, c.inner.Submit)
}

func (c *sessionContract) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return c.call(ctx, false, c.m.cfg.EvaluateTimeout, tx, args, c.inner.Evaluate)
}

func (c *sessionContract) call(
	ctx context.Context,
	submit bool,
	timeout time.Duration,
	tx string,
	args []string,
	do func(context.Context, string, ...string) ([]byte, error),
) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := do(ctx, tx, args...)
	if err != nil {
		if _, ok := KindOf(err); !ok && (ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded)) {
			err = timeoutError(tx, submit, err)
		}
	}

	mode := "evaluate"
	if submit {
		mode = "submit"
	}
	c.m.metrics.CallDuration.WithLabelValues(tx, mode, outcomeLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.m.logger.Warnw("ledger_call_failed", "tx", tx, "mode", mode, "err", err)
	}
	return out, err
}
