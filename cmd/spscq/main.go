// Package main provides spscq, a tool to create, feed, drain and inspect
// shared memory queues.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/srediag/spsc-shm/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env, sigCh))
}
