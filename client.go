package duskrelay

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"gitlab.com/duskrelay/duskrelay.git/csrand"
	"gitlab.com/duskrelay/duskrelay.git/framing"
	"gitlab.com/duskrelay/duskrelay.git/internal/netutil"
)

// Client dials the relay server and negotiates a tunneled connection to a
// requested destination.
type Client struct {
	// ServerAddr is the relay server's address.
	ServerAddr string

	// DialTimeout bounds the initial TCP connect to ServerAddr.
	DialTimeout time.Duration

	// Seal wraps the session in a framing.SealedConn once the handshake
	// is sent, trading interop with a plain-wire peer for tamper
	// detection. The server must be run with the same setting.
	Seal bool
}

// NewClient builds a Client targeting serverAddr.
func NewClient(serverAddr string) *Client {
	return &Client{ServerAddr: serverAddr, DialTimeout: 10 * time.Second}
}

// DialContext connects to the relay server, performs the key exchange and
// handshake for a CONNECT to host:port, and returns the resulting
// FramedConn (wrapped in a SealedConn when Seal is set) as soon as the
// handshake payload is sent. The server gives no explicit handshake
// acknowledgement — a caller only learns the destination was unreachable
// when the connection subsequently yields nothing but EOF.
func (c *Client) DialContext(ctx context.Context, host, port string) (net.Conn, error) {
	dialer := netutil.Dialer
	dialer.Timeout = c.DialTimeout

	raw, err := dialer.DialContext(ctx, "tcp", c.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", c.ServerAddr, err)
	}

	key, err := csrand.Key(framing.KeyLength)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("client: generate session key: %w", err)
	}
	if _, err := raw.Write(key); err != nil {
		raw.Close()
		return nil, fmt.Errorf("client: send session key: %w", err)
	}

	conn, err := framing.New(raw, key)
	if err != nil {
		raw.Close()
		return nil, err
	}

	payload, err := framing.BuildHandshakePayload(net.JoinHostPort(host, port), time.Now())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: build handshake payload: %w", err)
	}
	if err := conn.Send(payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: send handshake payload: %w", err)
	}

	if !c.Seal {
		return conn, nil
	}

	encodeKey, decodeKey, err := framing.DeriveSealKeys(key)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: derive seal keys: %w", err)
	}
	sealed, err := framing.NewSealedConn(conn, encodeKey, decodeKey)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: wrap sealed transport: %w", err)
	}
	return sealed, nil
}

// Dial implements golang.org/x/net/proxy.Dialer's plain form, for callers
// that don't need a context.
func (c *Client) Dial(network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	return c.DialContext(context.Background(), host, port)
}

var _ proxy.Dialer = (*Client)(nil)
