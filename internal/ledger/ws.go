package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient speaks the rippled websocket dialect. Requests carry a command
// name and a client-chosen id; responses are correlated back by id, so a
// single connection can serve concurrent callers.
type WSClient struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan wsResponse
	closed  bool
	readErr error

	done chan struct{}
}

type wsResponse struct {
	envelope
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// DialWS connects to a rippled websocket endpoint and starts the read loop.
func DialWS(ctx context.Context, url string, logger *zap.Logger) (*WSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial ledger websocket %s: %w", url, err)
	}
	c := &WSClient{
		conn:    conn,
		log:     logger,
		pending: make(map[uint64]chan wsResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	defer close(c.done)
	for {
		var resp wsResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.failAll(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if !ok {
			c.log.Warn("ledger websocket response with unknown id", zap.Uint64("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

func (c *WSClient) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *WSClient) Request(ctx context.Context, method string, params any, result any) error {
	frame := map[string]any{}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", method, err)
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("marshal %s request: %w", method, err)
		}
	}
	frame["command"] = method

	c.mu.Lock()
	if c.closed || c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = errors.New("connection closed")
		}
		return fmt.Errorf("%s request: %w", method, err)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan wsResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	frame["id"] = id

	c.writeMu.Lock()
	err := c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s request: %w", method, err)
	}

	start := time.Now()
	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", ErrTimeout, method, time.Since(start))
		}
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			return fmt.Errorf("%s request: connection lost: %w", method, err)
		}
		if err := resp.rpcError(method); err != nil {
			return err
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Close shuts the connection down and waits for the read loop to exit.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}
