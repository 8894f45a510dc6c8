// Package client speaks the manager's control protocol from the management
// side, and the data-plane protocol of a worker.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"workermgr/internal/protocol"
)

// DefaultDialTimeout bounds Dial when ctx has no deadline.
const DefaultDialTimeout = 5 * time.Second

// Client is one connection to a manager or worker socket. It is not safe for
// concurrent use; commands are strictly request/response.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to network ("unix" or "tcp") at addr.
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	d := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Do sends one request and waits for its response. A deadline on ctx is
// applied to the connection for the duration of the call.
func (c *Client) Do(ctx context.Context, cmd byte, keys []string, fields map[string][]byte) (protocol.Response, error) {
	dl, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(dl); err != nil {
		return protocol.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := c.conn.Write(protocol.EncodeRequest(cmd, keys, fields)); err != nil {
		return protocol.Response{}, c.ctxErr(ctx, fmt.Errorf("write request: %w", err))
	}
	resp, err := protocol.DecodeResponse(c.r)
	if err != nil {
		return protocol.Response{}, c.ctxErr(ctx, err)
	}
	return resp, nil
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Load asks the manager to load a model.
func (c *Client) Load(ctx context.Context, cmd protocol.LoadCommand) (protocol.Response, error) {
	keys, f := cmd.Fields()
	return c.Do(ctx, protocol.CmdLoad, keys, f)
}

// ScaleUp asks the manager to start one worker. The call blocks until the
// manager has verified readiness, which takes up to the probe budget.
func (c *Client) ScaleUp(ctx context.Context, cmd protocol.ScaleUpCommand) (protocol.Response, error) {
	keys, f := cmd.Fields()
	return c.Do(ctx, protocol.CmdScaleUp, keys, f)
}

func (c *Client) ScaleDown(ctx context.Context, cmd protocol.ScaleDownCommand) (protocol.Response, error) {
	keys, f := cmd.Fields()
	return c.Do(ctx, protocol.CmdScaleDown, keys, f)
}

// Infer sends one data-plane request to a worker.
func (c *Client) Infer(ctx context.Context, body []byte) (protocol.Response, error) {
	return c.Do(ctx, protocol.CmdInfer, []string{protocol.FieldBody}, map[string][]byte{protocol.FieldBody: body})
}
