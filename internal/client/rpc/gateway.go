package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const DefaultPath = "/jsonrpc"

// Gateway executes application calls. Implemented by HTTPGateway and by the
// retry policy wrapping it.
type Gateway interface {
	// Execute runs a mutation whose result is not inspected.
	Execute(ctx context.Context, req Request) error
	// Mutate runs a mutation and returns result.output.
	Mutate(ctx context.Context, req Request) (json.RawMessage, error)
	// Query runs a read and returns result.output.
	Query(ctx context.Context, req Request) (json.RawMessage, error)
}

type envelope struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      string  `json:"id"`
	Method  Shape   `json:"method"`
	Params  Request `json:"params"`
}

type wireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

type reply struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Result  *struct {
		Output json.RawMessage `json:"output"`
	} `json:"result"`
	Error *wireError `json:"error"`
}

type HTTPGateway struct {
	client  *http.Client
	creds   CredentialSource
	path    string
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     logging.Logger
	newID   func() string
}

type GatewayOption func(*HTTPGateway)

func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *HTTPGateway) { g.client = c }
}

func WithPath(p string) GatewayOption {
	return func(g *HTTPGateway) {
		if p != "" {
			g.path = p
		}
	}
}

func WithTimeout(d time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit caps outgoing calls per second. Zero or less disables it.
func WithRateLimit(perSecond float64) GatewayOption {
	return func(g *HTTPGateway) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *HTTPGateway) { g.metrics = m }
}

func WithLogger(l logging.Logger) GatewayOption {
	return func(g *HTTPGateway) {
		if l != nil {
			g.log = l
		}
	}
}

// NewHTTPGateway posts calls to {NodeURL}{path} of the current credential.
func NewHTTPGateway(creds CredentialSource, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		client:  &http.Client{},
		creds:   creds,
		path:    DefaultPath,
		timeout: common.DefaultCallTimeout,
		log:     logging.Discard(),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *HTTPGateway) Execute(ctx context.Context, req Request) error {
	_, err := g.call(ctx, ShapeExecute, req)
	return err
}

func (g *HTTPGateway) Mutate(ctx context.Context, req Request) (json.RawMessage, error) {
	return g.call(ctx, ShapeMutate, req)
}

func (g *HTTPGateway) Query(ctx context.Context, req Request) (json.RawMessage, error) {
	return g.call(ctx, ShapeQuery, req)
}

func (g *HTTPGateway) call(ctx context.Context, shape Shape, req Request) (json.RawMessage, error) {
	start := time.Now()
	out, err := g.do(ctx, shape, req)
	elapsed := time.Since(start)

	outcome := outcomeOf(err)
	g.metrics.ObserveCall(req.Method, string(shape), outcome, elapsed)
	g.log.Debug(ctx, "rpc call",
		"method", req.Method,
		"shape", shape,
		"outcome", outcome,
		"elapsed", elapsed,
	)
	return out, err
}

func (g *HTTPGateway) do(ctx context.Context, shape Shape, req Request) (json.RawMessage, error) {
	cred, ok := g.creds.Read()
	if !ok || cred.NodeURL == "" || cred.AccessToken == "" {
		return nil, AuthFailure()
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: "rate limit", Err: err}
		}
	}

	id := g.newID()
	body, err := json.Marshal(envelope{JSONRPC: "2.0", ID: id, Method: shape, Params: req})
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}

	url := strings.TrimRight(cred.NodeURL, "/") + g.path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "new request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(common.AuthorizationHeaderName, "Bearer "+cred.AccessToken)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read body", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, forbidden(strings.TrimSpace(string(raw)))
	case resp.StatusCode != http.StatusOK:
		return nil, &TransportError{
			Op:  "post",
			Err: fmt.Errorf("unexpected status %s: %s", resp.Status, truncate(raw, 256)),
		}
	}

	var rep reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	if rep.ID != "" && rep.ID != id {
		return nil, &TransportError{Op: "decode", Err: fmt.Errorf("response id %q does not match request id %q", rep.ID, id)}
	}

	if rep.Error != nil {
		return nil, remoteError(rep.Error)
	}
	if rep.Result == nil {
		return nil, &TransportError{Op: "decode", Err: errors.New("response carries neither result nor error")}
	}
	if len(rep.Result.Output) == 0 {
		return json.RawMessage("null"), nil
	}
	return rep.Result.Output, nil
}

func remoteError(w *wireError) *Error {
	e := &Error{Code: w.Code, Message: w.Message}
	if e.Code == 0 {
		e.Code = RemoteErrorCode
	}
	if e.Message == "" {
		e.Message = w.Type
	}
	if e.Message == "" {
		e.Message = "remote error"
	}
	if len(w.Data) > 0 && string(w.Data) != "null" {
		var s string
		if json.Unmarshal(w.Data, &s) == nil {
			e.Data = s
		} else {
			e.Data = string(w.Data)
		}
	}
	return e
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	var re *Error
	if errors.As(err, &re) {
		switch {
		case re.Forbidden():
			return metrics.OutcomeForbidden
		case errors.Is(re, common.ErrAuthenticationFailed):
			return metrics.OutcomeAuth
		}
		return metrics.OutcomeRemote
	}
	return metrics.OutcomeTransport
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
