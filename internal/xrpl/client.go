package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 30 * time.Second
	streamBuffer     = 64
)

// Conn is a single request/stream connection to one node
type Conn interface {
	// Request sends command with params and waits for the matching response
	Request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error)
	// Stream delivers unsolicited messages (ledgerClosed etc). It is closed with the connection.
	Stream() <-chan json.RawMessage
	// Done is closed once the connection is unusable
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a Conn to url
type Dialer func(ctx context.Context, url string) (Conn, error)

type response struct {
	ID           *uint64         `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

type resultError struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
	Status       string `json:"status"`
}

// Client is a websocket connection speaking the JSON command protocol.
// Requests are correlated to responses by id.
type Client struct {
	url    string
	conn   *websocket.Conn
	closed chan struct{}
	stream chan json.RawMessage

	mu         sync.Mutex // protects connClosed, err, lastID and results
	connClosed bool
	err        error
	lastID     uint64
	pending    chan []byte
	results    map[uint64]chan *response
}

// Dial connects to a node websocket endpoint
func Dial(ctx context.Context, url string) (Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Client{
		url:     url,
		conn:    ws,
		closed:  make(chan struct{}),
		stream:  make(chan json.RawMessage, streamBuffer),
		pending: make(chan []byte, 100),
		results: make(map[uint64]chan *response),
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Request implements Conn
func (c *Client) Request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	id := c.nextID()

	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["id"] = id
	msg["command"] = command

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", command, err)
	}

	ch := make(chan *response, 1)
	c.mu.Lock()
	if c.connClosed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.results[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.results, id)
		c.mu.Unlock()
	}()

	select {
	case c.pending <- body:
	case <-c.closed:
		return nil, c.closeErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-ch:
		return decodeResult(command, resp)
	case <-c.closed:
		return nil, c.closeErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decodeResult(command string, resp *response) (json.RawMessage, error) {
	if resp.Status == "error" || resp.Error != "" {
		code, msg := resp.Error, resp.ErrorMessage
		if code == "" && len(resp.Result) > 0 {
			var re resultError
			if err := json.Unmarshal(resp.Result, &re); err == nil {
				code, msg = re.Error, re.ErrorMessage
			}
		}
		if code == "" {
			code = "unknown"
		}
		return nil, &RemoteError{Command: command, Code: code, Message: msg}
	}

	// some servers report errors inside a successful envelope
	var re resultError
	if err := json.Unmarshal(resp.Result, &re); err == nil && re.Error != "" {
		return nil, &RemoteError{Command: command, Code: re.Error, Message: re.ErrorMessage}
	}
	return resp.Result, nil
}

// Stream implements Conn
func (c *Client) Stream() <-chan json.RawMessage {
	return c.stream
}

// Done implements Conn
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Close terminates the underlying websocket connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeWithError(nil)
}

func (c *Client) closeWithError(err error) error {
	if c.connClosed {
		return c.err
	}
	if err == nil {
		err = c.conn.Close()
	} else {
		c.conn.Close()
	}
	c.connClosed = true
	if err == nil {
		err = ErrClosed
	}
	c.err = err
	close(c.closed)
	return err
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Client) handleError(err error) {
	slog.Debug("Node connection closed", "url", c.url, "error", err)
	c.mu.Lock()
	c.closeWithError(err)
	c.mu.Unlock()
}

func (c *Client) nextID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	return c.lastID
}

func (c *Client) readLoop() {
	defer close(c.stream)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleError(err)
			return
		}

		resp := &response{}
		if err := json.Unmarshal(data, resp); err != nil {
			c.handleError(fmt.Errorf("malformed message: %w", err))
			return
		}

		if resp.Type != "response" && resp.ID == nil {
			select {
			case c.stream <- json.RawMessage(data):
			default:
				slog.Warn("Dropping stream message, consumer is behind", "url", c.url, "type", resp.Type)
			}
			continue
		}

		if resp.ID == nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.results[*resp.ID]
		c.mu.Unlock()
		if !ok {
			slog.Debug("Received response for unknown request", "url", c.url, "id", *resp.ID)
			continue
		}
		ch <- resp
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case body := <-c.pending:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.handleError(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				c.handleError(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}
