// Package ledgertest provides an in-memory ledger.Connector that scripts
// contract responses and counts session acquisitions and releases.
package ledgertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

const Identity = "appUser"

// Handler produces the contract response for one call.
type Handler func(ctx context.Context, args []string) ([]byte, error)

// Returns answers with fixed bytes.
func Returns(data []byte) Handler {
	return func(context.Context, []string) ([]byte, error) { return data, nil }
}

// JSON answers with v marshalled to JSON.
func JSON(v any) Handler {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Returns(data)
}

// Fails answers with err.
func Fails(err error) Handler {
	return func(context.Context, []string) ([]byte, error) { return nil, err }
}

// Blocks waits for ctx to end and returns its error.
func Blocks() Handler {
	return func(ctx context.Context, _ []string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

type Call struct {
	Tx     string
	Args   []string
	Submit bool
}

type Connector struct {
	mu         sync.Mutex
	submits    map[string]Handler
	evaluates  map[string]Handler
	calls      []Call
	connectErr error

	acquired       atomic.Int64
	released       atomic.Int64
	doubleReleases atomic.Int64
}

func New() *Connector {
	return &Connector{
		submits:   make(map[string]Handler),
		evaluates: make(map[string]Handler),
	}
}

func (c *Connector) OnSubmit(tx string, h Handler) *Connector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits[tx] = h
	return c
}

func (c *Connector) OnEvaluate(tx string, h Handler) *Connector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluates[tx] = h
	return c
}

// FailConnect makes every subsequent Connect return err.
func (c *Connector) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

func (c *Connector) Connect(ctx context.Context, id *wallet.Identity) (ledger.Handle, error) {
	c.mu.Lock()
	err := c.connectErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.acquired.Add(1)
	return &handle{c: c}, nil
}

func (c *Connector) Acquired() int64       { return c.acquired.Load() }
func (c *Connector) Released() int64       { return c.released.Load() }
func (c *Connector) DoubleReleases() int64 { return c.doubleReleases.Load() }

// Calls returns every contract call made so far, in order.
func (c *Connector) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount counts calls to tx.
func (c *Connector) CallCount(tx string) int {
	n := 0
	for _, call := range c.Calls() {
		if call.Tx == tx {
			n++
		}
	}
	return n
}

func (c *Connector) invoke(ctx context.Context, submit bool, tx string, args []string) ([]byte, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Tx: tx, Args: append([]string(nil), args...), Submit: submit})
	table := c.evaluates
	if submit {
		table = c.submits
	}
	h, ok := table[tx]
	c.mu.Unlock()

	if !ok {
		return nil, &ledger.Error{Kind: ledger.KindRejected, Tx: tx, Msg: fmt.Sprintf("function %s not scripted", tx)}
	}
	return h(ctx, args)
}

type handle struct {
	c      *Connector
	closed atomic.Bool
}

func (h *handle) Contract() ledger.Contract { return contract{c: h.c} }

func (h *handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		h.c.doubleReleases.Add(1)
		return fmt.Errorf("handle already closed")
	}
	h.c.released.Add(1)
	return nil
}

type contract struct{ c *Connector }

func (ct contract) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return ct.c.invoke(ctx, true, tx, args)
}

func (ct contract) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return ct.c.invoke(ctx, false, tx, args)
}

// Wallet is an in-memory wallet.Store.
type Wallet struct {
	mu  sync.Mutex
	ids map[string]*wallet.Identity
}

// NewWallet returns a wallet holding a placeholder identity under Identity.
func NewWallet() *Wallet {
	w := &Wallet{ids: make(map[string]*wallet.Identity)}
	w.ids[Identity] = wallet.NewX509("Org1MSP", []byte("cert"), []byte("key"))
	return w
}

func (w *Wallet) Get(label string) (*wallet.Identity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.ids[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", wallet.ErrNotFound, label)
	}
	return id, nil
}

func (w *Wallet) Put(label string, id *wallet.Identity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[label] = id
	return nil
}

func (w *Wallet) List() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for k := range w.ids {
		out = append(out, k)
	}
	return out, nil
}

var _ ledger.Connector = (*Connector)(nil)
var _ wallet.Store = (*Wallet)(nil)
