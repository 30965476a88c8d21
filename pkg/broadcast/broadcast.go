// Package broadcast runs one order-book polling task per connected client.
// Tasks share nothing: each owns its ticker, its in-flight read and its
// event channel, so a slow or failing client never affects another.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/energy-gateway/pkg/market"
	"github.com/uhyunpark/energy-gateway/pkg/util"
)

type EventType string

const (
	EventOrderBook EventType = "orderBookUpdate"
	EventError     EventType = "error"

	FetchErrorMessage = "Failed to fetch order book"
)

// Event is one message pushed to a client.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// FetchFunc reads the current order book. It must bound itself: polls run
// it on a context that a disconnect does not cancel.
type FetchFunc func(ctx context.Context) (market.OrderBook, error)

var (
	ErrDuplicateClient = errors.New("broadcast: client already connected")
	ErrClosed          = errors.New("broadcast: service shut down")
)

type Config struct {
	Interval time.Duration // time between the end of one poll and the next (default: 5s)
}

func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second}
}

type Service struct {
	cfg     Config
	fetch   FetchFunc
	clock   util.Clock
	logger  *zap.SugaredLogger
	metrics *Metrics

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, fetch FetchFunc, clock util.Clock, logger *zap.SugaredLogger, metrics *Metrics) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Service{
		cfg:     cfg,
		fetch:   fetch,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[string]*Subscription),
	}
}

// Subscription is a client's handle on its polling task.
type Subscription struct {
	id     string
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) ID() string { return s.id }

// Events yields the task's events in tick order. It is closed when the task
// exits.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed after the task has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Connect registers a client and starts its polling task. An empty id is
// replaced by a random one.
func (s *Service) Connect(id string) (*Subscription, error) {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.subs[id]; ok {
		return nil, ErrDuplicateClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		id:     id,
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.subs[id] = sub
	s.metrics.Clients.Inc()

	s.wg.Add(1)
	go s.run(ctx, sub)

	s.logger.Infow("broadcast_client_connected", "client", id, "clients", len(s.subs))
	return sub, nil
}

// Disconnect cancels the client's task and waits for it to exit. A read in
// flight at that moment runs to completion and its result is dropped.
// Unknown ids are ignored.
func (s *Service) Disconnect(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
		s.metrics.Clients.Dec()
	}
	remaining := len(s.subs)
	s.mu.Unlock()
	if !ok {
		return
	}

	sub.cancel()
	<-sub.done
	s.logger.Infow("broadcast_client_disconnected", "client", id, "clients", remaining)
}

// Count returns the number of connected clients.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Shutdown cancels every task and waits for them, or for ctx to expire.
// Connect fails afterwards.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, sub := range s.subs {
		sub.cancel()
		delete(s.subs, id)
		s.metrics.Clients.Dec()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("broadcast_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, sub *Subscription) {
	defer s.wg.Done()
	defer close(sub.done)
	defer close(sub.events)

	for {
		s.poll(ctx, sub)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.Interval):
		}
	}
}

// poll performs one read and emits its result. The read is not cut short
// by cancellation; its result is dropped instead.
func (s *Service) poll(ctx context.Context, sub *Subscription) {
	start := time.Now()
	book, err := s.fetch(context.WithoutCancel(ctx))
	if ctx.Err() != nil {
		s.metrics.Polls.WithLabelValues("dropped").Inc()
		return
	}

	var ev Event
	if err != nil {
		s.metrics.Polls.WithLabelValues("error").Inc()
		s.logger.Warnw("broadcast_fetch_failed", "client", sub.id, "err", err)
		ev = Event{Type: EventError, Data: ErrorData{Message: FetchErrorMessage}}
	} else {
		s.metrics.Polls.WithLabelValues("ok").Inc()
		ev = Event{Type: EventOrderBook, Data: book}
	}
	s.metrics.PollDuration.Observe(time.Since(start).Seconds())

	select {
	case sub.events <- ev:
	case <-ctx.Done():
	}
}
