// balance-rebuild compares every stored member balance with the ledger
// (deposits minus finalized meal costs and fees) and, unless -dry-run is set,
// moves drifted balances back onto the ledger value.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Only report drifted balances")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	settings := config.LoadSettings()
	logger := config.NewLogger(settings.LogLevel)
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not reachable: %v\n", err)
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	finance := workflow.NewFinanceWorkflow(store.NewMySQLStore(db), logger)

	var drifts []workflow.BalanceDrift
	if *dryRun {
		drifts, err = finance.CheckBalances(ctx)
	} else {
		drifts, err = finance.RebuildBalances(ctx)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "balance-rebuild"}).Error(err.Error())
		os.Exit(1)
	}

	for _, d := range drifts {
		fmt.Printf("member=%d stored=%s expected=%s diff=%s\n", d.MemberId, d.Stored, d.Expected, d.Difference())
	}
	action := "fixed"
	if *dryRun {
		action = "found"
	}
	fmt.Printf("%s %d drifted balance(s)\n", action, len(drifts))
}
