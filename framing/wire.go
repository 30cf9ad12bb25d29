package framing

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"gitlab.com/duskrelay/duskrelay.git/csrand"
)

const (
	// AuthFrameLength is the size of the authenticity frame: a 2-byte
	// magic, 118 bytes of padding, and an 8-byte timestamp.
	AuthFrameLength = 128

	// DestFrameLength is the size of the destination header: a 1-byte
	// reserved command, a 1-byte address length, the address itself, and
	// trailing padding.
	DestFrameLength = 258

	// MaxAddressLength is the largest "host:port" string the destination
	// header can carry.
	MaxAddressLength = 255

	authMagicHi  = 0xFF
	authMagicLo  = 0xFF
	authTSOffset = 120
	authTSLength = 8

	cmdConnect = 1

	// AuthWindow is the maximum tolerated clock skew between the
	// authenticity frame's embedded timestamp and the server's clock.
	AuthWindow = 60 * time.Second
)

// ErrMalformedAuth is returned when an authenticity frame's leading bytes
// are not the 0xFF 0xFF magic.
type ErrMalformedAuth struct{ Got [2]byte }

func (e ErrMalformedAuth) Error() string {
	return fmt.Sprintf("framing: malformed authenticity frame: got %#x %#x", e.Got[0], e.Got[1])
}

// ErrExpiredAuth is returned when an authenticity frame's timestamp falls
// outside AuthWindow of the server's clock.
type ErrExpiredAuth struct{ Skew time.Duration }

func (e ErrExpiredAuth) Error() string {
	return fmt.Sprintf("framing: expired authenticity frame: skew %s", e.Skew)
}

// ErrAddressTooLong is returned when a "host:port" string is empty or
// exceeds MaxAddressLength bytes.
type ErrAddressTooLong int

func (e ErrAddressTooLong) Error() string {
	return fmt.Sprintf("framing: address too long: %d bytes", int(e))
}

// ErrBadDestination is returned when a destination header's reserved
// command byte or length field is invalid.
type ErrBadDestination struct{ Reason string }

func (e ErrBadDestination) Error() string {
	return "framing: bad destination header: " + e.Reason
}

// BuildAuthFrame returns a fresh 128-byte authenticity frame: magic bytes,
// the current UNIX timestamp (big-endian, at [120:128)), and random
// padding everywhere else.
//
// The timestamp occupies a full 8-byte big-endian field here. The
// original wire format only ever wrote a 32-bit value left-padded with
// zero bytes, which happens to produce the same 8 bytes for any UNIX time
// before the year 2106; this implementation keeps that wire-compatible
// encoding without special-casing it.
func BuildAuthFrame(now time.Time) ([]byte, error) {
	buf := make([]byte, AuthFrameLength)
	if err := csrand.Bytes(buf); err != nil {
		return nil, fmt.Errorf("framing: padding: %w", err)
	}
	buf[0] = authMagicHi
	buf[1] = authMagicLo
	binary.BigEndian.PutUint64(buf[authTSOffset:authTSOffset+authTSLength], uint64(now.Unix()))
	return buf, nil
}

// ParseAuthFrame validates a 128-byte authenticity frame against now,
// returning the embedded timestamp on success.
func ParseAuthFrame(buf []byte, now time.Time) (time.Time, error) {
	if len(buf) != AuthFrameLength {
		return time.Time{}, ErrBadDestination{Reason: fmt.Sprintf("authenticity frame length %d", len(buf))}
	}
	if buf[0] != authMagicHi || buf[1] != authMagicLo {
		return time.Time{}, ErrMalformedAuth{Got: [2]byte{buf[0], buf[1]}}
	}
	sec := binary.BigEndian.Uint64(buf[authTSOffset : authTSOffset+authTSLength])
	ts := time.Unix(int64(sec), 0)
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > AuthWindow {
		return time.Time{}, ErrExpiredAuth{Skew: skew}
	}
	return ts, nil
}

// BuildDestFrame returns a fresh 258-byte destination header for a CONNECT
// to addr (a "host:port" string), with trailing random padding.
func BuildDestFrame(addr string) ([]byte, error) {
	if len(addr) < 1 || len(addr) > MaxAddressLength {
		return nil, ErrAddressTooLong(len(addr))
	}

	buf := make([]byte, DestFrameLength)
	if err := csrand.Bytes(buf); err != nil {
		return nil, fmt.Errorf("framing: padding: %w", err)
	}
	buf[0] = cmdConnect
	buf[1] = byte(len(addr))
	copy(buf[2:], addr)
	return buf, nil
}

// ParseDestFrame extracts the "host:port" address from a 258-byte
// destination header.
func ParseDestFrame(buf []byte) (host, port string, err error) {
	if len(buf) != DestFrameLength {
		return "", "", ErrBadDestination{Reason: fmt.Sprintf("destination frame length %d", len(buf))}
	}
	if buf[0] != cmdConnect {
		return "", "", ErrBadDestination{Reason: fmt.Sprintf("unsupported command %d", buf[0])}
	}
	l := int(buf[1])
	if l < 1 || l > MaxAddressLength || 2+l > len(buf) {
		return "", "", ErrBadDestination{Reason: fmt.Sprintf("invalid address length %d", l)}
	}
	addr := string(buf[2 : 2+l])
	host, port, err = net.SplitHostPort(addr)
	if err != nil {
		return "", "", ErrBadDestination{Reason: fmt.Sprintf("invalid address %q: %s", addr, err)}
	}
	return host, port, nil
}

// JoinHostPort is net.JoinHostPort, re-exported so callers building a
// destination frame bracket IPv6 literals the same way address parsing
// expects them back.
func JoinHostPort(host, port string) string {
	return net.JoinHostPort(host, port)
}
