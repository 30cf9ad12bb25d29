// Package framing implements the duskrelay wire framing: a FramedConn that
// obfuscates a raw net.Conn with a pair of independent keystreams, and the
// fixed-size authenticity and destination header frames the session
// protocol exchanges once a FramedConn is established.
//
// An opt-in authenticated variant, SealedConn, is also provided for callers
// that want integrity on top of the default obfuscation-only transport —
// see seal.go.
package framing

import (
	"fmt"
	"io"
	"net"
	"time"

	"gitlab.com/duskrelay/duskrelay.git/keystream"
)

// KeyLength is the size of the session key both ends of a FramedConn must
// be seeded with. The wire protocol always generates and exchanges exactly
// this many raw (unobfuscated) bytes during the handshake.
const KeyLength = 128

// FramedConn wraps a raw bidirectional byte stream with two independent
// Keystream instances, one per direction. Both are seeded with the same
// key; because they advance identically on each side, plaintext written on
// one end is recovered exactly on the other.
//
// A FramedConn is not safe for concurrent Read or concurrent Write (each
// direction may be driven from its own goroutine, matching net.Conn's
// usual contract), and its keystreams are destroyed with it.
type FramedConn struct {
	conn net.Conn
	wc   *keystream.Keystream
	rc   *keystream.Keystream
}

// New builds a FramedConn over conn, seeding both the write and read
// keystreams with key. key must be 1..256 bytes; the wire protocol always
// uses exactly KeyLength.
func New(conn net.Conn, key []byte) (*FramedConn, error) {
	wc, err := keystream.New(key)
	if err != nil {
		return nil, fmt.Errorf("framing: write keystream: %w", err)
	}
	rc, err := keystream.New(key)
	if err != nil {
		return nil, fmt.Errorf("framing: read keystream: %w", err)
	}
	return &FramedConn{conn: conn, wc: wc, rc: rc}, nil
}

// Send obfuscates data through the write keystream and writes it to the
// underlying stream in full, looping over short writes until complete or
// an error occurs.
func (f *FramedConn) Send(data []byte) error {
	buf := make([]byte, len(data))
	f.wc.XORKeyStream(buf, data)
	for len(buf) > 0 {
		n, err := f.conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Recv reads up to len(buf) bytes from the stream and deobfuscates them
// in place through the read keystream, returning the number of bytes
// read. End of stream is reported as (0, io.EOF).
func (f *FramedConn) Recv(buf []byte) (int, error) {
	n, err := f.conn.Read(buf)
	if n > 0 {
		f.rc.XORKeyStream(buf[:n], buf[:n])
	}
	return n, err
}

// RecvFull reads exactly len(buf) deobfuscated bytes, the idiom the
// session protocol relies on for its fixed-size frames.
func (f *FramedConn) RecvFull(buf []byte) error {
	_, err := io.ReadFull(f, buf)
	return err
}

// Read implements io.Reader / net.Conn in terms of Recv, so a FramedConn
// can be handed to io.Copy and friends directly.
func (f *FramedConn) Read(b []byte) (int, error) {
	return f.Recv(b)
}

// Write implements io.Writer / net.Conn in terms of Send.
func (f *FramedConn) Write(b []byte) (int, error) {
	if err := f.Send(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the underlying stream. Idempotent, matching net.Conn.
func (f *FramedConn) Close() error {
	return f.conn.Close()
}

func (f *FramedConn) LocalAddr() net.Addr  { return f.conn.LocalAddr() }
func (f *FramedConn) RemoteAddr() net.Addr { return f.conn.RemoteAddr() }

// SetDeadline, SetReadDeadline, and SetWriteDeadline pass through to the
// underlying stream. The server bounds its 10-second handshake window with
// a deadline set on the raw connection beneath the FramedConn; once a
// session is established the deadline is cleared and the connection runs
// untimed.
func (f *FramedConn) SetDeadline(t time.Time) error      { return f.conn.SetDeadline(t) }
func (f *FramedConn) SetReadDeadline(t time.Time) error  { return f.conn.SetReadDeadline(t) }
func (f *FramedConn) SetWriteDeadline(t time.Time) error { return f.conn.SetWriteDeadline(t) }

var _ net.Conn = (*FramedConn)(nil)
