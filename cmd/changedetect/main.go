// Package main provides the entry point for the changedetect CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/facilitymap/changedetect/cmd/changedetect/app"
)

// Version information populated by goreleaser.
var version = "dev"

func main() {
	application, err := app.New(version)
	if err != nil {
		app.ExitOnError(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := application.Execute(ctx, os.Args[1:]); err != nil {
		app.ExitOnError(err)
	}
}
