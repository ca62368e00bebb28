package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"umapembed/cmd/handlers"
	"umapembed/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := handlers.Execute(ctx)
	stop()
	os.Exit(code)
}
