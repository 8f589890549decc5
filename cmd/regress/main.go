// Command regress runs the interpreter regression suite.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/regress/internal/cli"
	"github.com/roach88/regress/internal/midi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	midi.Shutdown()
	os.Exit(code)
}
