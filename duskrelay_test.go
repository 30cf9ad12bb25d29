package duskrelay

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/duskrelay/duskrelay.git/keystream"
)

// echoListener accepts one connection and echoes everything it reads,
// standing in for the real destination a session gets spliced to.
func echoListener(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestClientServerEndToEndEcho(t *testing.T) {
	echoAddr, stopEcho := echoListener(t)
	defer stopEcho()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ServerConfig{ListenAddr: ln.Addr().String()})
	go srv.Serve(ln)

	client := NewClient(ln.Addr().String())
	host, port, err := net.SplitHostPort(echoAddr)
	require.NoError(t, err)

	conn, err := client.DialContext(context.Background(), host, port)
	require.NoError(t, err)
	defer conn.Close()

	payload := make([]byte, 1<<20)
	_, err = rand.Read(payload)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Write(payload)
		done <- err
	}()

	got := make([]byte, len(payload))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.True(t, bytes.Equal(payload, got))
}

func TestServerRejectsMalformedHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ServerConfig{ListenAddr: ln.Addr().String()})
	go srv.Serve(ln)

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	key := make([]byte, 128)
	_, err = rand.Read(key)
	require.NoError(t, err)
	_, err = raw.Write(key)
	require.NoError(t, err)

	// An obfuscated frame of random bytes will essentially never start
	// with the 0xFF 0xFF magic, so the server should reject and close.
	garbage := make([]byte, 128)
	_, err = rand.Read(garbage)
	require.NoError(t, err)
	ks, err := keystream.New(key)
	require.NoError(t, err)
	obfuscated := make([]byte, len(garbage))
	ks.XORKeyStream(obfuscated, garbage)
	_, err = raw.Write(obfuscated)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := raw.Write([]byte{0})
		return err != nil
	}, 3*time.Second, 10*time.Millisecond)
}
