package main

import (
	"context"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/command"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Set up a signal-interruptible context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := command.NewRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		log.Fatal(err)
	}

	cancel()
}
