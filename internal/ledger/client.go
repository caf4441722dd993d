package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client issues one JSON-RPC request against a ledger node. params is
// marshalled as the single element of the request's params array (or omitted
// when nil); result, when non-nil, receives the response's result body.
// A ledger-side failure is returned as *RPCError; a missed deadline wraps
// ErrTimeout.
type Client interface {
	Request(ctx context.Context, method string, params any, result any) error
}

// envelope is the common response shape of the rippled JSON-RPC and
// websocket APIs. Status and the error fields live inside result for the
// HTTP transport and at the top level for websockets; rpcError handles both.
type envelope struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

func (e envelope) rpcError(method string) error {
	if e.Status != "error" && e.Error == "" {
		return nil
	}
	return &RPCError{Method: method, Code: e.Error, Message: e.ErrorMessage}
}

// HTTPClient speaks the rippled JSON-RPC-over-HTTP dialect.
type HTTPClient struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewHTTPClient builds a client for the given JSON-RPC endpoint. A nil logger
// means no logging.
func NewHTTPClient(url string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    logger,
	}
}

func (c *HTTPClient) Request(ctx context.Context, method string, params any, result any) error {
	body := map[string]any{"method": method}
	if params != nil {
		body["params"] = []any{params}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s after %s", ErrTimeout, method, time.Since(start))
		}
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request: unexpected status %s", method, resp.Status)
	}

	var wire struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	var env envelope
	if err := json.Unmarshal(wire.Result, &env); err != nil {
		return fmt.Errorf("decode %s response envelope: %w", method, err)
	}
	if err := env.rpcError(method); err != nil {
		c.log.Debug("ledger rpc error",
			zap.String("method", method),
			zap.String("code", env.Error))
		return err
	}

	if result != nil {
		if err := json.Unmarshal(wire.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	c.log.Debug("ledger rpc ok",
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
