package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/ledger/ledgertest"
)

func newManager(conn *ledgertest.Connector, cfg ledger.Config) (*ledger.Manager, *ledger.Metrics) {
	if cfg.Identity == "" {
		cfg.Identity = ledgertest.Identity
	}
	metrics := ledger.NopMetrics()
	return ledger.NewManager(cfg, ledgertest.NewWallet(), conn, nil, metrics), metrics
}

func assertBalanced(t *testing.T, conn *ledgertest.Connector, want int64) {
	t.Helper()
	assert.Equal(t, want, conn.Acquired(), "acquisitions")
	assert.Equal(t, want, conn.Released(), "releases")
	assert.Zero(t, conn.DoubleReleases(), "double releases")
}

func TestWithSession_Success(t *testing.T) {
	conn := ledgertest.New().OnEvaluate(ledger.TxGetOrderBook, ledgertest.Returns([]byte(`{"buy":[],"sell":[]}`)))
	m, metrics := newManager(conn, ledger.Config{})

	out, err := ledger.WithSession(context.Background(), m, func(ctx context.Context, c ledger.Contract) (string, error) {
		b, err := c.Evaluate(ctx, ledger.TxGetOrderBook)
		return string(b), err
	})
	require.NoError(t, err)
	assert.Equal(t, `{"buy":[],"sell":[]}`, out)
	assertBalanced(t, conn, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.OpenSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Acquisitions.WithLabelValues("ok")))
}

func TestWithSession_ErrorPropagatesUnchanged(t *testing.T) {
	conn := ledgertest.New()
	m, _ := newManager(conn, ledger.Config{})
	sentinel := errors.New("decode failed")

	_, err := ledger.WithSession(context.Background(), m, func(context.Context, ledger.Contract) (int, error) {
		return 0, sentinel
	})
	assert.Same(t, sentinel, err)
	assertBalanced(t, conn, 1)
}

func TestWithSession_ReleasesOnPanic(t *testing.T) {
	conn := ledgertest.New()
	m, metrics := newManager(conn, ledger.Config{})

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = ledger.WithSession(context.Background(), m, func(context.Context, ledger.Contract) (int, error) {
			panic("boom")
		})
	})
	assertBalanced(t, conn, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.OpenSessions))
}

func TestWithSession_EvaluateTimeout(t *testing.T) {
	conn := ledgertest.New().OnEvaluate(ledger.TxGetTradeHistory, ledgertest.Blocks())
	m, _ := newManager(conn, ledger.Config{EvaluateTimeout: 20 * time.Millisecond})

	_, err := m.Evaluate(context.Background(), ledger.TxGetTradeHistory)
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindTimeout), "got %v", err)
	assertBalanced(t, conn, 1)
}

func TestWithSession_SubmitTimeoutIsAmbiguous(t *testing.T) {
	conn := ledgertest.New().OnSubmit(ledger.TxMatchOrders, ledgertest.Blocks())
	m, _ := newManager(conn, ledger.Config{SubmitTimeout: 20 * time.Millisecond})

	_, err := m.Submit(context.Background(), ledger.TxMatchOrders)
	require.Error(t, err)

	var le *ledger.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ledger.KindTimeout, le.Kind)
	assert.Contains(t, le.Msg, "outcome unknown")
	assert.Equal(t, 1, conn.CallCount(ledger.TxMatchOrders), "submit is not retried")
	assertBalanced(t, conn, 1)
}

func TestWithSession_IdentityNotFound(t *testing.T) {
	conn := ledgertest.New()
	m, metrics := newManager(conn, ledger.Config{Identity: "nobody"})

	_, err := m.Evaluate(context.Background(), ledger.TxGetOrderBook)
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindIdentityNotFound))
	assert.Contains(t, err.Error(), `"nobody"`)
	assertBalanced(t, conn, 0)
	assert.Empty(t, conn.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Acquisitions.WithLabelValues("IdentityNotFound")))
}

func TestWithSession_ConnectionError(t *testing.T) {
	conn := ledgertest.New()
	conn.FailConnect(errors.New("dial tcp 127.0.0.1:7051: connection refused"))
	m, _ := newManager(conn, ledger.Config{})

	_, err := m.Submit(context.Background(), ledger.TxPlaceOrder, "buy", "5", "2", "u1", "")
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindConnection))
	assertBalanced(t, conn, 0)
	assert.Empty(t, conn.Calls())
}

func TestWithSession_ContractRejection(t *testing.T) {
	rejected := &ledger.Error{Kind: ledger.KindRejected, Tx: ledger.TxTransferProducerOwnership, Msg: "user u1 is not the current owner of producer p1"}
	conn := ledgertest.New().OnSubmit(ledger.TxTransferProducerOwnership, ledgertest.Fails(rejected))
	m, _ := newManager(conn, ledger.Config{})

	_, err := m.Submit(context.Background(), ledger.TxTransferProducerOwnership, "p1", "u1", "u2")
	assert.Same(t, rejected, err)
	assertBalanced(t, conn, 1)
}

func TestWithSession_ConcurrentSessionsAreIndependent(t *testing.T) {
	conn := ledgertest.New().OnEvaluate(ledger.TxGetMarketState, ledgertest.Returns([]byte(`{}`)))
	m, _ := newManager(conn, ledger.Config{})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Evaluate(context.Background(), ledger.TxGetMarketState)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assertBalanced(t, conn, n)
}

func TestWithSession_MultipleCallsShareOneHandle(t *testing.T) {
	conn := ledgertest.New().
		OnEvaluate(ledger.TxGetMarketState, ledgertest.Returns([]byte(`{}`))).
		OnEvaluate(ledger.TxGetTradeHistory, ledgertest.Returns([]byte(`[]`)))
	m, _ := newManager(conn, ledger.Config{})

	_, err := ledger.WithSession(context.Background(), m, func(ctx context.Context, c ledger.Contract) (struct{}, error) {
		if _, err := c.Evaluate(ctx, ledger.TxGetMarketState); err != nil {
			return struct{}{}, err
		}
		_, err := c.Evaluate(ctx, ledger.TxGetTradeHistory)
		return struct{}{}, err
	})
	require.NoError(t, err)
	assert.Len(t, conn.Calls(), 2)
	assertBalanced(t, conn, 1)
}
