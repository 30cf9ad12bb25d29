// Command duskrelay-cmd runs a child process with its all_proxy
// environment variable pointed at a running duskrelay-client, so
// proxy-aware tools pick up the tunnel without further configuration.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

func main() {
	client := flag.String("c", "127.0.0.1:51959", "duskrelay-client SOCKS5 address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: duskrelay-cmd [-c host:port] <command> [args...]")
		os.Exit(1)
	}

	cmd := exec.Command("sh", "-c", strings.Join(args, " "))
	cmd.Env = append(os.Environ(), "all_proxy=socks5://"+*client)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		log.Fatalf("[ERROR] duskrelay-cmd: %s", err)
	}
}
