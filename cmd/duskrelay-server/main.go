// Command duskrelay-server runs the relay's listening side: it accepts
// obfuscated tunnel connections, authenticates their handshake, and
// forwards each session to its requested destination.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/duskrelay/duskrelay.git"
	"gitlab.com/duskrelay/duskrelay.git/framing"
)

func main() {
	listen := flag.String("l", "0.0.0.0:51958", "listen address")
	maxSessions := flag.Int("max-sessions", 128, "maximum concurrent tunneled sessions")
	replayWindow := flag.Duration("replay-window", 0, "reject authenticity frames seen again within this window (0 disables replay rejection)")
	seal := flag.Bool("seal", false, "wrap sessions in the authenticated sealed transport; clients must match")
	flag.Parse()

	cfg := duskrelay.ServerConfig{
		ListenAddr:  *listen,
		MaxSessions: *maxSessions,
		Seal:        *seal,
	}
	if *replayWindow > 0 {
		filter, err := framing.NewReplayFilter(*replayWindow)
		if err != nil {
			log.Fatalf("[ERROR] duskrelay-server: build replay filter: %s", err)
		}
		cfg.ReplayFilter = filter
	}

	srv := duskrelay.NewServer(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.ListenAndServe() }()

	select {
	case err := <-errChan:
		log.Fatalf("[ERROR] duskrelay-server: %s", err)
	case sig := <-sigChan:
		log.Printf("[INFO] duskrelay-server: received %s, waiting for %d active sessions", sig, srv.ActiveSessions())
		if srv.ActiveSessions() > 0 {
			<-srv.Idle()
		}
		log.Println("[INFO] duskrelay-server: terminated")
	}
}
