package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"trade-journal/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewApp(cli.Options{}), os.Args[1:])
	stop()
	os.Exit(code)
}
