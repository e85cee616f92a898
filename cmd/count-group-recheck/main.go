// count-group-recheck recomputes the divergence of every product in a count group and
// flags the divergent ones for review, the same pass a round close runs.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	ERP_DB_HOST=... go run ./cmd/count-group-recheck --group-key=<uuid> --round=2 --dry-run=false
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/stockoracle"
)

func main() {
	groupKey := flag.String("group-key", "", "Required: count group key")
	round := flag.Int("round", 1, "Round number to evaluate (1-3)")
	dryRun := flag.Bool("dry-run", true, "Print evaluations only (no writes)")
	flag.Parse()

	if strings.TrimSpace(*groupKey) == "" {
		fmt.Fprintln(os.Stderr, "--group-key is required")
		os.Exit(1)
	}
	if !models.IsValidRoundNumber(*round) {
		fmt.Fprintln(os.Stderr, "--round must be 1, 2 or 3")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	if err := config.ConnectERP(); err != nil {
		logger.Warn("live stock lookups disabled: " + err.Error())
	}
	defer config.CloseERP()

	ctx := context.Background()
	evaluator := models.NewDivergenceEvaluator(db, stockoracle.NewERPOracle(config.GetERPDB()), logger)

	if *dryRun {
		if err := printEvaluations(ctx, evaluator, *groupKey, *round); err != nil {
			fmt.Fprintf(os.Stderr, "evaluation failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	gate := models.NewRoundGate(db, evaluator, nil, logger)
	diverged, err := gate.RecheckGroup(ctx, *groupKey, *round)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recheck failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("group=%s round=%d diverged=%t\n", *groupKey, *round, diverged)
}

func printEvaluations(ctx context.Context, evaluator *models.DivergenceEvaluator, groupKey string, round int) error {
	items, err := models.ListGroupItems(ctx, evaluator.DB, groupKey)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("group %s has no items", groupKey)
	}
	keysByProduct := make(map[int][]string)
	var order []int
	for _, it := range items {
		if _, ok := keysByProduct[it.ProductCode]; !ok {
			order = append(order, it.ProductCode)
		}
		keysByProduct[it.ProductCode] = append(keysByProduct[it.ProductCode], it.ItemKey)
	}
	for _, code := range order {
		ev, err := evaluator.Compute(ctx, code, round, keysByProduct[code])
		if err != nil {
			return err
		}
		fmt.Printf("product=%d reference=%s counted=%s divergence=%s locations=%d/%d diverges=%t\n",
			code, ev.ReferenceStock, ev.RealSum, ev.Divergence, ev.CountedLocations, ev.Locations, ev.Diverges)
	}
	return nil
}
