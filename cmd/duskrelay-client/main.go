// Command duskrelay-client exposes a local SOCKS5 CONNECT proxy backed by
// the obfuscated tunnel, routing destinations directly when a CIDR table
// says they're already reachable and through the tunnel otherwise.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/net/proxy"

	"gitlab.com/duskrelay/duskrelay.git"
	"gitlab.com/duskrelay/duskrelay.git/internal/netutil"
	"gitlab.com/duskrelay/duskrelay.git/internal/pool"
	"gitlab.com/duskrelay/duskrelay.git/router"
	"gitlab.com/duskrelay/duskrelay.git/socks"
)

func main() {
	listen := flag.String("l", "127.0.0.1:51959", "local SOCKS5 listen address")
	server := flag.String("s", "127.0.0.1:51958", "relay server address")
	resolvers := flag.String("resolver", strings.Join(router.DefaultNameservers, ","), "comma-separated DNS nameservers for route classification")
	noRouting := flag.Bool("no-direct-routing", false, "tunnel every connection instead of classifying by CIDR table")
	seal := flag.Bool("seal", false, "wrap sessions in the authenticated sealed transport; the server must match")
	flag.Parse()

	client := duskrelay.NewClient(*server)
	client.Seal = *seal

	var dialer proxy.Dialer
	if *noRouting {
		dialer = client
	} else {
		dialer = buildRouter(client, *resolvers)
	}

	ln, err := netutil.Listen(context.Background(), *listen)
	if err != nil {
		log.Fatalf("[ERROR] duskrelay-client: listen: %s", err)
	}
	log.Printf("[INFO] duskrelay-client: SOCKS5 listening on %s, relaying via %s", *listen, *server)

	p := pool.New(128)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("[ERROR] duskrelay-client: accept: %s", err)
				return
			}
			p.Go(func() { serveSocks(conn, dialer) })
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("[INFO] duskrelay-client: received %s, shutting down", sig)
	ln.Close()
}

func buildRouter(client *duskrelay.Client, resolverList string) *router.Router {
	nameservers := strings.Split(resolverList, ",")
	resolver := router.NewResolver(nameservers...)

	cachePath, err := router.DefaultCachePath()
	if err != nil {
		log.Printf("[WARN] duskrelay-client: %s, tunneling everything", err)
		return router.New(nil, resolver, client)
	}
	table, err := router.LoadCIDRTable(context.Background(), cachePath, router.DefaultFetch)
	if err != nil {
		log.Printf("[WARN] duskrelay-client: load CIDR table: %s, tunneling everything", err)
		return router.New(nil, resolver, client)
	}
	log.Printf("[INFO] duskrelay-client: loaded %d direct-route CIDR blocks", len(table))
	return router.New(table, resolver, client)
}

func serveSocks(conn net.Conn, dialer proxy.Dialer) {
	defer conn.Close()

	req, err := socks.Handshake(conn)
	if err != nil {
		log.Printf("[WARN] duskrelay-client: socks handshake: %s", err)
		return
	}

	dest, err := dialer.Dial("tcp", req.Addr())
	if err != nil {
		log.Printf("[WARN] duskrelay-client: connect %s: %s", req.Addr(), err)
		socks.Fail(conn)
		return
	}
	if err := socks.Succeed(conn); err != nil {
		dest.Close()
		return
	}

	duskrelay.Splice(conn, dest)
}
