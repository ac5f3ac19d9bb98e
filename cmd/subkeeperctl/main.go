// subkeeperctl runs one-shot maintenance commands against the subkeeper
// database: migrations, catalog seeding, the renewal sweep, OTP cleanup
// and wallet reconciliation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/subkeeper/internal/ctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctl.Run(ctx, os.Args[1:], os.Stdout, ctl.OpenPostgres); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
