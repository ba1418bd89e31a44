package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rahul/cookframe/internal/cli"
	"github.com/rahul/cookframe/internal/observability"
)

func main() {
	// Route log output through the terminal mutex so it never splits a
	// progress line.
	log.SetOutput(observability.NewTermWriter())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
