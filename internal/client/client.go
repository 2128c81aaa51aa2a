package client

import (
	"net"
	"time"

	"github.com/kvsd/kvs/internal/kverrors"
	"github.com/kvsd/kvs/internal/protocol"
)

// DefaultDialTimeout bounds how long Dial waits for the TCP handshake.
const DefaultDialTimeout = 5 * time.Second

// Client issues one request per connection against a kvs-server.
type Client struct {
	addr        string
	dialTimeout time.Duration
}

// Option configures a Client at construction.
type Option func(*Client)

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// New creates a Client that dials addr fresh for every request.
func New(addr string, opts ...Option) *Client {
	c := &Client{addr: addr, dialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores key=value.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(protocol.NewSet(key, value))
	if err != nil {
		return err
	}
	if !resp.OK {
		return kverrors.New(kverrors.StringError, resp.Info)
	}
	return nil
}

// Get fetches the value for key. found is false, with no error, if
// the key is absent.
func (c *Client) Get(key string) (value string, found bool, err error) {
	resp, err := c.roundTrip(protocol.NewGet(key))
	if err != nil {
		return "", false, err
	}
	if !resp.OK {
		return "", false, kverrors.New(kverrors.StringError, resp.Info)
	}
	if resp.Info == protocol.KeyNotFoundInfo {
		return "", false, nil
	}
	return resp.Info, true, nil
}

// Rm deletes key. Removing an absent key returns a
// kverrors.KeyNotFound-kind error carrying the message "Key not found".
func (c *Client) Rm(key string) error {
	resp, err := c.roundTrip(protocol.NewRm(key))
	if err != nil {
		return err
	}
	if !resp.OK {
		if resp.Info == kverrors.ErrKeyNotFound.Message {
			return kverrors.ErrKeyNotFound
		}
		return kverrors.New(kverrors.StringError, resp.Info)
	}
	return nil
}

func (c *Client) roundTrip(cmd protocol.Command) (protocol.Response, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return protocol.Response{}, kverrors.IOErr("client: dial "+c.addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteCommand(conn, cmd); err != nil {
		return protocol.Response{}, err
	}
	return protocol.ReadResponse(conn)
}
