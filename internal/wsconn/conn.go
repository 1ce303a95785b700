// Package wsconn is the client side of the wagering service's WebSocket
// endpoints.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var ErrClosed = errors.New("connection closed")

// ConnectionError is returned when a stream cannot be opened or breaks while
// reading.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection %s: %v", e.URL, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError is returned when a frame cannot be written.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("send: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadLimit caps a single inbound frame. Table snapshots from the
	// service are large, so the library default of 32KiB is too small.
	ReadLimit int64
	Header    http.Header
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

type Conn struct {
	ws   *websocket.Conn
	url  string
	opts Options

	mu     sync.Mutex
	closed bool
}

func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	dctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dctx, url, &websocket.DialOptions{HTTPHeader: opts.Header})
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	ws.SetReadLimit(opts.ReadLimit)
	return &Conn{ws: ws, url: url, opts: opts}, nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if c.isClosed() {
		return &SendError{Err: ErrClosed}
	}
	wctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := c.ws.Write(wctx, websocket.MessageText, payload); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

// Read returns the next frame. A close from the peer, clean or not, is an
// error: the stream is over.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		switch status := websocket.CloseStatus(err); status {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, fmt.Errorf("%w by peer: %s", ErrClosed, status)
		}
		return nil, &ConnectionError{URL: c.url, Err: err}
	}
	return data, nil
}

// Ping needs a concurrent Read to observe the pong.
func (c *Conn) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.ws.Ping(ctx)
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.ws.Close(websocket.StatusNormalClosure, "bye")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}
