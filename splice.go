package duskrelay

import (
	"io"
	"log"
	"net"
	"sync"
)

// Splice relays bytes bidirectionally between a and b until either side
// closes or errors, then closes both ends. It blocks until both
// directions have finished, the way the relay's connection handler waits
// out a session before returning.
func Splice(a, b net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer a.Close()
		defer b.Close()
		if _, err := io.Copy(b, a); err != nil {
			log.Printf("[WARN] splice: %s -> %s: %s", a.RemoteAddr(), b.RemoteAddr(), err)
		}
	}()
	go func() {
		defer wg.Done()
		defer b.Close()
		defer a.Close()
		if _, err := io.Copy(a, b); err != nil {
			log.Printf("[WARN] splice: %s -> %s: %s", b.RemoteAddr(), a.RemoteAddr(), err)
		}
	}()

	wg.Wait()
}
