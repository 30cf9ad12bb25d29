package duskrelay

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"gitlab.com/duskrelay/duskrelay.git/framing"
	"gitlab.com/duskrelay/duskrelay.git/internal/netutil"
	"gitlab.com/duskrelay/duskrelay.git/internal/pool"
)

// HandshakeTimeout bounds how long a freshly accepted connection has to
// complete its key exchange, authenticity check, and destination frame
// before the server gives up on it.
const HandshakeTimeout = 10 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	// ListenAddr is the address the server accepts raw TCP connections on.
	ListenAddr string

	// MaxSessions bounds concurrent tunneled sessions. Zero means
	// unbounded.
	MaxSessions int

	// ReplayFilter, if non-nil, rejects authenticity frames that have
	// already been seen — an opt-in defense the default wire format
	// doesn't require.
	ReplayFilter *framing.ReplayFilter

	// Dial overrides how the server reaches a session's destination.
	// Defaults to netutil.Dialer.Dial, which sets SO_REUSEADDR.
	Dial func(network, addr string) (net.Conn, error)

	// Seal wraps accepted sessions in a framing.SealedConn once the
	// handshake is read. Clients must be run with the same setting.
	Seal bool
}

// Server accepts tunneled connections, authenticates their handshake, and
// splices each session through to its requested destination.
type Server struct {
	cfg  ServerConfig
	pool *pool.Pool
}

// NewServer builds a Server from cfg, filling in defaults.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Dial == nil {
		cfg.Dial = netutil.Dialer.Dial
	}
	return &Server{cfg: cfg, pool: pool.New(cfg.MaxSessions)}
}

// ListenAndServe listens on cfg.ListenAddr and serves until the listener
// is closed or ln.Accept returns a fatal error.
func (s *Server) ListenAndServe() error {
	ln, err := netutil.ListenConfig.Listen(context.Background(), "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer ln.Close()

	log.Printf("[INFO] server: listening on %s", s.cfg.ListenAddr)
	return s.Serve(ln)
}

// Serve accepts connections off ln until it returns an error.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		s.pool.Go(func() { s.handle(conn) })
	}
}

// Idle returns a channel that fires each time the last in-flight session
// finishes, for a shutdown path that wants to drain before exiting.
func (s *Server) Idle() <-chan struct{} { return s.pool.Idle() }

// ActiveSessions reports how many sessions are currently being served.
func (s *Server) ActiveSessions() int { return s.pool.Active() }

func (s *Server) handle(raw net.Conn) {
	defer raw.Close()
	defer logPanic("server.handle")

	if err := raw.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		log.Printf("[WARN] server: set handshake deadline: %s", err)
		return
	}

	key := make([]byte, framing.KeyLength)
	if _, err := readFull(raw, key); err != nil {
		log.Printf("[WARN] server: read session key: %s", err)
		return
	}

	conn, err := framing.New(raw, key)
	if err != nil {
		log.Printf("[WARN] server: %s", err)
		return
	}

	authBuf := make([]byte, framing.AuthFrameLength)
	if err := conn.RecvFull(authBuf); err != nil {
		log.Printf("[WARN] server: read authenticity frame: %s", err)
		return
	}
	now := time.Now()
	if _, err := framing.ParseAuthFrame(authBuf, now); err != nil {
		log.Printf("[WARN] server: reject handshake from %s: %s", raw.RemoteAddr(), err)
		return
	}
	if s.cfg.ReplayFilter != nil && s.cfg.ReplayFilter.TestAndSet(now, authBuf) {
		log.Printf("[WARN] server: replayed authenticity frame from %s", raw.RemoteAddr())
		return
	}

	destBuf := make([]byte, framing.DestFrameLength)
	if err := conn.RecvFull(destBuf); err != nil {
		log.Printf("[WARN] server: read destination frame: %s", err)
		return
	}
	host, port, err := framing.ParseDestFrame(destBuf)
	if err != nil {
		log.Printf("[WARN] server: %s", err)
		return
	}

	var session net.Conn = conn
	if s.cfg.Seal {
		clientToServer, serverToClient, err := framing.DeriveSealKeys(key)
		if err != nil {
			log.Printf("[WARN] server: derive seal keys: %s", err)
			return
		}
		sealed, err := framing.NewSealedConn(conn, serverToClient, clientToServer)
		if err != nil {
			log.Printf("[WARN] server: wrap sealed transport: %s", err)
			return
		}
		session = sealed
	}

	dest, err := s.cfg.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		log.Printf("[WARN] server: dial %s:%s: %s", host, port, err)
		return
	}

	if err := raw.SetDeadline(time.Time{}); err != nil {
		log.Printf("[WARN] server: clear deadline: %s", err)
		dest.Close()
		return
	}

	log.Printf("[INFO] server: %s -> %s:%s", raw.RemoteAddr(), host, port)
	Splice(session, dest)
}
