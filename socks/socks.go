// Package socks implements a CONNECT-only subset of RFC 1928 SOCKS5, the
// ingress a client exposes to local applications in front of the tunnel.
package socks

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"

	"golang.org/x/net/idna"
)

const (
	version5 = 0x05

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	methodNoAuth = 0x00

	replySucceeded     = 0x00
	replyGeneralFailure = 0x01
)

// ErrUnsupportedVersion is returned when the greeting's version byte
// isn't 5.
type ErrUnsupportedVersion int

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("socks: unsupported protocol version %d", int(e))
}

// ErrUnsupportedCommand is returned for anything other than CONNECT.
type ErrUnsupportedCommand int

func (e ErrUnsupportedCommand) Error() string {
	return fmt.Sprintf("socks: unsupported command %d", int(e))
}

// ErrUnsupportedAddressType is returned for an ATYP this package doesn't
// parse.
type ErrUnsupportedAddressType int

func (e ErrUnsupportedAddressType) Error() string {
	return fmt.Sprintf("socks: unsupported address type %d", int(e))
}

// Request is a parsed CONNECT request: the destination host (an IP
// literal or, for ATYP=3, an IDNA-normalized domain) and decimal port.
type Request struct {
	Host string
	Port string
}

// Addr renders the request as a "host:port" string.
func (r Request) Addr() string { return net.JoinHostPort(r.Host, r.Port) }

// Handshake performs the SOCKS5 greeting (no-auth only) and reads the
// CONNECT request off conn. The caller is responsible for sending a reply
// with Succeed or Fail once it knows the outcome of dialing the
// destination.
func Handshake(conn net.Conn) (Request, error) {
	if err := readGreeting(conn); err != nil {
		return Request{}, err
	}
	return readRequest(conn)
}

func readGreeting(conn net.Conn) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return fmt.Errorf("socks: read greeting: %w", err)
	}
	if hdr[0] != version5 {
		return ErrUnsupportedVersion(hdr[0])
	}
	nmethods := int(hdr[1])
	methods := make([]byte, nmethods)
	if _, err := io.ReadFull(conn, methods); err != nil {
		return fmt.Errorf("socks: read auth methods: %w", err)
	}
	_, err := conn.Write([]byte{version5, methodNoAuth})
	if err != nil {
		return fmt.Errorf("socks: write greeting reply: %w", err)
	}
	return nil
}

func readRequest(conn net.Conn) (Request, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return Request{}, fmt.Errorf("socks: read request header: %w", err)
	}
	if hdr[0] != version5 {
		return Request{}, ErrUnsupportedVersion(hdr[0])
	}
	if hdr[1] != cmdConnect {
		return Request{}, ErrUnsupportedCommand(hdr[1])
	}

	var host string
	switch hdr[3] {
	case atypIPv4:
		addr := make([]byte, net.IPv4len)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return Request{}, fmt.Errorf("socks: read IPv4 address: %w", err)
		}
		host = net.IP(addr).String()
	case atypDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return Request{}, fmt.Errorf("socks: read domain length: %w", err)
		}
		domain := make([]byte, int(lenBuf[0]))
		if _, err := io.ReadFull(conn, domain); err != nil {
			return Request{}, fmt.Errorf("socks: read domain: %w", err)
		}
		normalized, err := idna.Lookup.ToASCII(string(domain))
		if err != nil {
			// Not every hostname applications hand us is valid IDNA
			// (bare IPs-as-strings, internal hostnames); fall back to
			// the raw bytes rather than rejecting the connection.
			normalized = string(domain)
		}
		host = normalized
	case atypIPv6:
		addr := make([]byte, net.IPv6len)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return Request{}, fmt.Errorf("socks: read IPv6 address: %w", err)
		}
		host = net.IP(addr).String()
	default:
		return Request{}, ErrUnsupportedAddressType(hdr[3])
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return Request{}, fmt.Errorf("socks: read port: %w", err)
	}
	port := strconv.Itoa(int(binary.BigEndian.Uint16(portBuf)))

	return Request{Host: host, Port: port}, nil
}

// Succeed writes a success reply with a fixed, all-zero BND.ADDR/BND.PORT
// — callers never actually bind a distinct relay address, so there is
// nothing meaningful to report back.
func Succeed(conn net.Conn) error {
	return writeReply(conn, replySucceeded)
}

// Fail writes a general-failure reply.
func Fail(conn net.Conn) error {
	return writeReply(conn, replyGeneralFailure)
}

func writeReply(conn net.Conn, code byte) error {
	reply := []byte{version5, code, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := conn.Write(reply)
	return err
}
