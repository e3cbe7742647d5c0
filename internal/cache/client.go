package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// Client implements KeyStore over a Unix socket served by Serve.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

var _ KeyStore = (*Client)(nil)

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: 500 * time.Millisecond}
}

// Ping opens and closes a connection to the daemon.
func (c *Client) Ping(ctx context.Context) error {
	return c.withConn(ctx, func(net.Conn) error { return nil })
}

func (c *Client) withConn(ctx context.Context, fn func(conn net.Conn) error) error {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return unavailable(err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return fn(conn)
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	var resp Response
	err := c.withConn(ctx, func(conn net.Conn) error {
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			return unavailable(err)
		}
		if err := json.NewDecoder(conn).Decode(&resp); err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if !resp.OK {
		switch resp.Code {
		case codeNotFound:
			return resp, ErrNotFound
		case codeDecode:
			return resp, &DecodeError{Key: req.Key, Kind: "int", Err: errors.New(resp.Error)}
		}
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.do(ctx, Request{Op: "get", Key: key})
	if err != nil {
		return nil, err
	}
	return append([]byte{}, resp.Value...), nil
}

func (c *Client) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.do(ctx, Request{Op: "put", Key: key, Value: value, TTLMs: ttl.Milliseconds()})
	return err
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.do(ctx, Request{Op: "delete", Key: key})
	return err
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	resp, err := c.do(ctx, Request{Op: "incr", Key: key})
	if err != nil {
		return 0, err
	}
	return resp.Int, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := c.do(ctx, Request{Op: "expire", Key: key, TTLMs: ttl.Milliseconds()})
	return err
}

func (c *Client) Append(ctx context.Context, key string, value []byte) error {
	_, err := c.do(ctx, Request{Op: "append", Key: key, Value: value})
	return err
}

func (c *Client) Range(ctx context.Context, key string) ([][]byte, error) {
	resp, err := c.do(ctx, Request{Op: "range", Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) Clear(ctx context.Context) error {
	_, err := c.do(ctx, Request{Op: "clear"})
	return err
}

// Close is a no-op; connections are per request.
func (c *Client) Close() error { return nil }
