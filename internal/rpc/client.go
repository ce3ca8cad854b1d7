package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	dialTimeout = 2 * time.Second
	callTimeout = 30 * time.Second
)

// Client is a connection to the daemon's control socket. Not safe for
// concurrent use; the CLI issues one call at a time.
type Client struct {
	conn net.Conn
}

// Dial connects to the control socket. A connect failure usually means
// the daemon is not running.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: connecting to %s: %w", socketPath, err)
	}

	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one command and waits for its response. A response with
// ok=false is returned as-is, not as an error; transport failures are
// errors.
func (c *Client) Call(cmd string, params any) (Response, error) {
	req := Request{Cmd: cmd}

	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return Response{}, fmt.Errorf("rpc: encoding params: %w", err)
		}

		req.Params = payload
	}

	if err := c.conn.SetDeadline(time.Now().Add(callTimeout)); err != nil {
		return Response{}, fmt.Errorf("rpc: setting deadline: %w", err)
	}

	if err := writeFrame(c.conn, req); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := readFrame(c.conn, &resp); err != nil {
		return Response{}, err
	}

	return resp, nil
}

// DecodeData unmarshals a successful response's data payload into v.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("rpc: response carries no data")
	}

	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("rpc: decoding response data: %w", err)
	}

	return nil
}
