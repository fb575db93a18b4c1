package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"shx/internal/cli"
)

func main() {
	logger := log.New(os.Stderr, "shx: ", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code, err := cli.New(logger).Run(ctx, os.Args[1:])
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("%v", err)
	}
	os.Exit(code)
}
