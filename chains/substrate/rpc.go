package substrate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/w3f-community/iroha/chains"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

/*
	rpcClient is a minimal JSON-RPC 2.0 client over a websocket. One reader
	goroutine per connection dispatches responses to waiting callers by
	request id. A broken connection fails all in-flight calls and is redialed
	lazily on the next one.
*/
type rpcClient struct {
	endpoint string
	timeout  time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]chan *rpcResponse
	nextID  uint64
}

func newRPCClient(endpoint string, timeout time.Duration) *rpcClient {
	return &rpcClient{
		endpoint: endpoint,
		timeout:  timeout,
		pending:  make(map[uint64]chan *rpcResponse),
	}
}

func (c *rpcClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	if c.conn == nil {
		if err := c.dial(ctx); err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("can't dial '%s': %s (%w)", c.endpoint, err.Error(), chains.ErrUnavailable)
		}
	}

	c.nextID++
	id := c.nextID
	respCh := make(chan *rpcResponse, 1)
	c.pending[id] = respCh

	if params == nil {
		params = []interface{}{}
	}
	err := c.conn.WriteJSON(&rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(c.pending, id)
		c.dropConnLocked()
		c.mu.Unlock()
		return nil, fmt.Errorf("write failed: %s (%w)", err.Error(), chains.ErrUnavailable)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("call '%s' timed out (%w)", method, chains.ErrUnavailable)
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("connection lost during '%s' (%w)", method, chains.ErrUnavailable)
		}
		if resp.Error != nil {
			return nil, mapRPCError(resp.Error)
		}
		return resp.Result, nil
	}
}

// connect eagerly dials the endpoint, used as a startup reachability check.
func (c *rpcClient) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	return c.dial(ctx)
}

func (c *rpcClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropConnLocked()
}

func (c *rpcClient) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

func (c *rpcClient) readLoop(conn *websocket.Conn) {
	for {
		var resp rpcResponse
		if err := conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.dropConnLocked()
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- &resp
		}
	}
}

func (c *rpcClient) dropConnLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

/*
	The server-error range (-32099..-32000) covers conditions like a full
	transaction pool, which resolve themselves; everything else means the
	node actively refused the request.
*/
func mapRPCError(e *rpcError) error {
	if e.Code >= -32099 && e.Code <= -32000 {
		return fmt.Errorf("%s (%w)", e.Error(), chains.ErrUnavailable)
	}
	return fmt.Errorf("%s (%w)", e.Error(), chains.ErrRejected)
}
