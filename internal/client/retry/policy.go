// Package retry wraps an rpc.Gateway with the retry-on-expiry policy: a
// forbidden (403) reply triggers one credential refresh and one replay of
// the identical call. The replay's outcome is final. A second forbidden, or
// a failed refresh, is a terminal authentication failure: the credential is
// cleared, registered hooks are notified and the caller gets an error
// matching common.ErrTerminalAuth. Every other error passes through untouched.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/client/rpc"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"golang.org/x/sync/singleflight"
)

type Refresher interface {
	Refresh(ctx context.Context) error
}

type CredentialStore interface {
	Read() (credentials.Credential, bool)
	Clear(ctx context.Context) error
}

type Policy struct {
	next      rpc.Gateway
	refresher Refresher
	store     CredentialStore
	metrics   *metrics.Metrics
	log       logging.Logger

	group singleflight.Group

	mu     sync.Mutex
	hooks  map[int]func(error)
	nextID int
}

var _ rpc.Gateway = (*Policy)(nil)

func New(next rpc.Gateway, refresher Refresher, store CredentialStore, m *metrics.Metrics, log logging.Logger) *Policy {
	if log == nil {
		log = logging.Discard()
	}
	return &Policy{
		next:      next,
		refresher: refresher,
		store:     store,
		metrics:   m,
		log:       log,
		hooks:     make(map[int]func(error)),
	}
}

// OnTerminalAuth registers fn to run after a terminal authentication
// failure, once the credential has been cleared.
func (p *Policy) OnTerminalAuth(fn func(error)) (unregister func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.hooks[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.hooks, id)
	}
}

func (p *Policy) Execute(ctx context.Context, req rpc.Request) error {
	_, err := p.run(ctx, req, func(ctx context.Context) (json.RawMessage, error) {
		return nil, p.next.Execute(ctx, req)
	})
	return err
}

func (p *Policy) Mutate(ctx context.Context, req rpc.Request) (json.RawMessage, error) {
	return p.run(ctx, req, func(ctx context.Context) (json.RawMessage, error) {
		return p.next.Mutate(ctx, req)
	})
}

func (p *Policy) Query(ctx context.Context, req rpc.Request) (json.RawMessage, error) {
	return p.run(ctx, req, func(ctx context.Context) (json.RawMessage, error) {
		return p.next.Query(ctx, req)
	})
}

func (p *Policy) run(ctx context.Context, req rpc.Request, call func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	used := p.accessToken()

	out, err := call(ctx)
	if err == nil || !rpc.IsForbidden(err) {
		return out, err
	}

	p.log.Debug(ctx, "forbidden reply, refreshing credential", "method", req.Method)
	if rerr := p.refresh(ctx, used); rerr != nil {
		return nil, p.terminal(ctx, req.Method, rerr)
	}

	p.metrics.ObserveRetry()
	out, err = call(ctx)
	if rpc.IsForbidden(err) {
		return nil, p.terminal(ctx, req.Method, err)
	}
	return out, err
}

// refresh runs at most one refresh at a time. A caller whose token was
// already replaced while it waited skips the refresh and just retries.
func (p *Policy) refresh(ctx context.Context, used string) error {
	_, err, _ := p.group.Do("refresh", func() (any, error) {
		if cur := p.accessToken(); cur != "" && cur != used {
			return nil, nil
		}
		return nil, p.refresher.Refresh(context.WithoutCancel(ctx))
	})
	return err
}

func (p *Policy) accessToken() string {
	c, ok := p.store.Read()
	if !ok {
		return ""
	}
	return c.AccessToken
}

func (p *Policy) terminal(ctx context.Context, method string, cause error) error {
	err := fmt.Errorf("%s: %w: %w", method, common.ErrTerminalAuth, cause)
	p.log.Warn(ctx, "terminal authentication failure", "method", method, "error", cause)

	if cerr := p.store.Clear(ctx); cerr != nil {
		p.log.Error(ctx, "failed to clear credential", "error", cerr)
	}

	p.mu.Lock()
	hooks := make([]func(error), 0, len(p.hooks))
	for _, h := range p.hooks {
		hooks = append(hooks, h)
	}
	p.mu.Unlock()

	for _, h := range hooks {
		h(err)
	}
	return err
}
