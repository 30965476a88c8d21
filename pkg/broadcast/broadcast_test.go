package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/energy-gateway/pkg/market"
	"github.com/uhyunpark/energy-gateway/pkg/util"
)

const testInterval = 10 * time.Millisecond

func book() market.OrderBook {
	return market.OrderBook{
		Buy:  []market.Order{{UserID: "consumer1", Price: 12, Quantity: 3, OrderType: market.Buy}},
		Sell: []market.Order{},
	}
}

func newService(fetch FetchFunc) *Service {
	return New(Config{Interval: testInterval}, fetch, util.RealClock{}, nil, nil)
}

func next(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event within 2s")
		return Event{}
	}
}

// discard consumes events in the background until the channel closes.
func discard(sub *Subscription) {
	go func() {
		for range sub.Events() {
		}
	}()
}

// drain consumes events until the channel closes.
func drain(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed")
		}
	}
}

func TestService_FirstPollIsImmediate(t *testing.T) {
	svc := New(Config{Interval: time.Hour}, func(context.Context) (market.OrderBook, error) {
		return book(), nil
	}, util.RealClock{}, nil, nil)
	defer svc.Shutdown(context.Background())

	sub, err := svc.Connect("client-1")
	require.NoError(t, err)

	ev := next(t, sub)
	assert.Equal(t, EventOrderBook, ev.Type)
	assert.Equal(t, book(), ev.Data)
}

func TestService_FetchErrorKeepsPolling(t *testing.T) {
	var n atomic.Int32
	svc := newService(func(context.Context) (market.OrderBook, error) {
		if n.Add(1) == 1 {
			return market.OrderBook{}, errors.New("LedgerTimeout GetOrderBook: query timed out")
		}
		return book(), nil
	})
	defer svc.Shutdown(context.Background())

	sub, err := svc.Connect("client-1")
	require.NoError(t, err)

	ev := next(t, sub)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, ErrorData{Message: FetchErrorMessage}, ev.Data)

	ev = next(t, sub)
	assert.Equal(t, EventOrderBook, ev.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.Polls.WithLabelValues("error")))
}

func TestService_DisconnectStopsPolling(t *testing.T) {
	var fetches atomic.Int32
	svc := newService(func(context.Context) (market.OrderBook, error) {
		fetches.Add(1)
		return book(), nil
	})
	defer svc.Shutdown(context.Background())

	sub, err := svc.Connect("client-1")
	require.NoError(t, err)
	next(t, sub)
	next(t, sub)

	done := make(chan struct{})
	go func() {
		svc.Disconnect("client-1")
		close(done)
	}()
	drain(t, sub)
	<-done

	assert.Zero(t, svc.Count())
	stopped := fetches.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, stopped, fetches.Load(), "no fetches after disconnect")
}

func TestService_DisconnectLeavesOthersRunning(t *testing.T) {
	svc := newService(func(context.Context) (market.OrderBook, error) {
		return book(), nil
	})
	defer svc.Shutdown(context.Background())

	a, err := svc.Connect("a")
	require.NoError(t, err)
	b, err := svc.Connect("b")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Count())

	next(t, a)
	next(t, b)

	discard(a)
	svc.Disconnect("a")

	for i := 0; i < 3; i++ {
		assert.Equal(t, EventOrderBook, next(t, b).Type)
	}
	assert.Equal(t, 1, svc.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.Clients))
}

func TestService_InFlightReadCompletesAndIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var completed, cancelled atomic.Bool
	svc := newService(func(ctx context.Context) (market.OrderBook, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		cancelled.Store(ctx.Err() != nil)
		completed.Store(true)
		return book(), nil
	})
	defer svc.Shutdown(context.Background())

	sub, err := svc.Connect("client-1")
	require.NoError(t, err)
	<-started

	disconnected := make(chan struct{})
	go func() {
		svc.Disconnect("client-1")
		close(disconnected)
	}()
	require.Eventually(t, func() bool { return svc.Count() == 0 }, time.Second, time.Millisecond)
	time.Sleep(2 * testInterval)

	select {
	case <-disconnected:
		t.Fatal("disconnect returned before the in-flight read finished")
	default:
	}
	close(release)

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnect did not return")
	}
	assert.True(t, completed.Load())
	assert.False(t, cancelled.Load(), "read saw a cancelled context")
	assert.Equal(t, int32(1), calls.Load())

	ev, ok := <-sub.Events()
	assert.False(t, ok, "unexpected event %+v", ev)
	<-sub.Done()
}

func TestService_OneReadInFlightPerClient(t *testing.T) {
	var inFlight, peak atomic.Int32
	svc := newService(func(context.Context) (market.OrderBook, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * testInterval)
		return book(), nil
	})
	defer svc.Shutdown(context.Background())

	sub, err := svc.Connect("client-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		next(t, sub)
	}
	assert.Equal(t, int32(1), peak.Load())
}

func TestService_ConnectErrors(t *testing.T) {
	svc := newService(func(context.Context) (market.OrderBook, error) { return book(), nil })

	sub, err := svc.Connect("client-1")
	require.NoError(t, err)
	_, err = svc.Connect("client-1")
	assert.ErrorIs(t, err, ErrDuplicateClient)

	anon, err := svc.Connect("")
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID())
	assert.NotEqual(t, sub.ID(), anon.ID())

	discard(sub)
	discard(anon)
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Zero(t, svc.Count())

	_, err = svc.Connect("client-2")
	assert.ErrorIs(t, err, ErrClosed)

	svc.Disconnect("unknown")
}
