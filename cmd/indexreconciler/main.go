// Command indexreconciler runs the secondary-index reconciliation pass
// (province/city/non-registered user sets) once and exits, for use from a
// cron/k8s CronJob alongside the long-running syncserver process. It shares
// the same core.Core wiring so the two binaries never drift in how they
// construct the store client or the cache.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/atlasdevji/prowhey-middleware/core"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := core.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			c.Logger.WithError(err).Warn("indexreconciler: close failed")
		}
	}()

	if err := c.ReconcileIndexes(ctx); err != nil {
		c.Logger.WithError(err).Error("indexreconciler: reconcile failed")
		return err
	}
	c.Logger.Info("indexreconciler: reconcile complete")
	return nil
}
