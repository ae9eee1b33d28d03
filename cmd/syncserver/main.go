// Command prowhey-middleware runs the sync middleware server: it wires a
// Core (store, cache, journal, sync processor, ERP fetcher/transformer,
// notification dispatcher) to the echo-based HTTP surface and the
// background scheduler, then blocks until a termination signal arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlasdevji/prowhey-middleware/core"
	"github.com/atlasdevji/prowhey-middleware/httpapi"
	"github.com/atlasdevji/prowhey-middleware/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := core.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			c.Logger.WithError(err).Warn("main: close failed")
		}
	}()

	sch := scheduler.New(c.Store, c.SchedulerTasks(), c.Logger)
	go sch.Run(ctx)

	e := httpapi.NewServer(c.HTTPDeps())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpapi.StartServer(e, c.Config.Server)
	}()

	select {
	case <-ctx.Done():
		c.Logger.Info("main: shutdown signal received, draining in-flight requests")
		return httpapi.GracefulShutdown(e, c.Config.Server)
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	}
}
