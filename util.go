package duskrelay

import (
	"io"
	"log"
	"net"
)

func readFull(conn net.Conn, buf []byte) (int, error) {
	return io.ReadFull(conn, buf)
}

// logPanic recovers a panic in a connection handler goroutine and logs it,
// the way obfs4proxy.go's logAndRecover guards its connection handlers.
func logPanic(where string) {
	if err := recover(); err != nil {
		log.Printf("[ERROR] %s: panic: %s", where, err)
	}
}
