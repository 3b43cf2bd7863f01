package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/jdwpd/commands"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/logger"
)

const (
	errCommandError = 1
	errPanic        = 3
)

func main() {
	log := logger.New("jdwpd")
	defer func() {
		if err := commands.MakePanicError(recover(), log.Logger); err != nil {
			log.Flush()
			os.Exit(errPanic)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := commands.NewRootCommand(log)
	err := root.ExecuteContext(ctx)
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(errCommandError)
	}
}
