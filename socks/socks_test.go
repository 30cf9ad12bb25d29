package socks

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeIPv4Connect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte{0x05, 0x01, 0x00}) // greeting, no-auth
		reply := make([]byte, 2)
		io.ReadFull(client, reply)
		client.Write([]byte{0x05, 0x01, 0x00, 0x01, 127, 0, 0, 1, 0x01, 0xBB}) // 443
	}()

	req, err := Handshake(server)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", req.Host)
	require.Equal(t, "443", req.Port)
}

func TestHandshakeDomainConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte{0x05, 0x01, 0x00})
		reply := make([]byte, 2)
		io.ReadFull(client, reply)

		domain := "example.com"
		req := []byte{0x05, 0x01, 0x00, 0x03, byte(len(domain))}
		req = append(req, domain...)
		req = append(req, 0x00, 0x50) // port 80
		client.Write(req)
	}()

	req, err := Handshake(server)
	require.NoError(t, err)
	require.Equal(t, "example.com", req.Host)
	require.Equal(t, "80", req.Port)
}

func TestHandshakeRejectsUnsupportedVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go client.Write([]byte{0x04, 0x01, 0x00})

	_, err := Handshake(server)
	require.Error(t, err)
	require.IsType(t, ErrUnsupportedVersion(0), err)
}

func TestHandshakeRejectsUnsupportedCommand(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte{0x05, 0x01, 0x00})
		reply := make([]byte, 2)
		io.ReadFull(client, reply)
		client.Write([]byte{0x05, 0x02, 0x00, 0x01, 127, 0, 0, 1, 0x00, 0x50})
	}()

	_, err := Handshake(server)
	require.Error(t, err)
	require.IsType(t, ErrUnsupportedCommand(0), err)
}

func TestSucceedWritesExpectedReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go Succeed(server)

	buf := make([]byte, 10)
	io.ReadFull(client, buf)
	require.Equal(t, []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}, buf)
}

func TestFailWritesExpectedReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go Fail(server)

	buf := make([]byte, 10)
	io.ReadFull(client, buf)
	require.Equal(t, []byte{0x05, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0, 0}, buf)
}
