package models

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type fakeOracle struct {
	stock decimal.Decimal
	found bool
	err   error
	block bool
	calls int

	companyCodes []string
}

func (o *fakeOracle) FetchLiveStock(ctx context.Context, productCode int, companyCode string) (decimal.Decimal, bool, error) {
	o.calls++
	o.companyCodes = append(o.companyCodes, companyCode)
	if o.block {
		<-ctx.Done()
		return decimal.Zero, false, ctx.Err()
	}
	return o.stock, o.found, o.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestResolveReviewFlag(t *testing.T) {
	cases := []struct {
		name       string
		locations  int
		counted    int
		callerFlag bool
		diverges   bool
		want       bool
	}{
		{"single location trusts caller true", 1, 1, true, false, true},
		{"single location trusts caller false", 1, 1, false, true, false},
		{"single location uncounted trusts caller", 1, 0, true, false, true},
		{"multi partially counted keeps caller", 2, 1, true, false, true},
		{"multi partially counted keeps caller false", 2, 1, false, true, false},
		{"multi fully counted diverging", 2, 2, false, true, true},
		{"multi fully counted matching clears caller", 2, 2, true, false, false},
		{"multi none counted keeps caller", 2, 0, true, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveReviewFlag(tc.locations, tc.counted, tc.callerFlag, tc.diverges); got != tc.want {
				t.Fatalf("got %t want %t", got, tc.want)
			}
		})
	}
}

func TestLatestSnapshot(t *testing.T) {
	at := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		items []CountItem
		want  int64
	}{
		{"empty", nil, 0},
		{"single", []CountItem{{ID: 4, StockSnapshot: decimal.NewFromInt(7), UpdatedAt: at}}, 7},
		{"newer later in slice", []CountItem{
			{ID: 1, StockSnapshot: decimal.NewFromInt(18), UpdatedAt: at},
			{ID: 2, StockSnapshot: decimal.NewFromInt(20), UpdatedAt: at.Add(6 * time.Hour)},
		}, 20},
		{"newer earlier in slice with lower id", []CountItem{
			{ID: 5, StockSnapshot: decimal.NewFromInt(20), UpdatedAt: at.Add(6 * time.Hour)},
			{ID: 9, StockSnapshot: decimal.NewFromInt(18), UpdatedAt: at},
		}, 20},
		{"same instant goes to highest id", []CountItem{
			{ID: 3, StockSnapshot: decimal.NewFromInt(11), UpdatedAt: at},
			{ID: 8, StockSnapshot: decimal.NewFromInt(12), UpdatedAt: at},
			{ID: 6, StockSnapshot: decimal.NewFromInt(13), UpdatedAt: at},
		}, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LatestSnapshot(tc.items); !got.Equal(decimal.NewFromInt(tc.want)) {
				t.Fatalf("got %s want %d", got, tc.want)
			}
		})
	}
}

func TestResolveReferenceStock(t *testing.T) {
	at := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)
	items := []CountItem{
		{ID: 1, ItemKey: "7-2026-02-07", StockSnapshot: decimal.NewFromInt(18), UpdatedAt: at},
		{ID: 2, ItemKey: "7-2026-02-07", StockSnapshot: decimal.NewFromInt(20), UpdatedAt: at.Add(6 * time.Hour)},
	}
	ctx := context.Background()

	t.Run("no items", func(t *testing.T) {
		e := &DivergenceEvaluator{Logger: quietLogger()}
		got, err := e.ResolveReferenceStock(ctx, 7, nil)
		if err != nil || !got.IsZero() {
			t.Fatalf("got %s, %v", got, err)
		}
	})

	t.Run("no oracle uses most recent snapshot", func(t *testing.T) {
		e := &DivergenceEvaluator{Logger: quietLogger()}
		got, err := e.ResolveReferenceStock(ctx, 7, items)
		if err != nil || !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("got %s, %v", got, err)
		}
	})

	t.Run("oracle failure falls back", func(t *testing.T) {
		oracle := &fakeOracle{err: errors.New("erp down")}
		e := &DivergenceEvaluator{Oracle: oracle, Logger: quietLogger(), CompanyCode: "3"}
		got, err := e.ResolveReferenceStock(ctx, 7, items)
		if err != nil || !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("got %s, %v", got, err)
		}
		if oracle.calls != 1 {
			t.Fatalf("oracle calls: %d", oracle.calls)
		}
	})

	t.Run("oracle timeout falls back", func(t *testing.T) {
		oracle := &fakeOracle{block: true}
		e := &DivergenceEvaluator{Oracle: oracle, Logger: quietLogger(), CompanyCode: "3", OracleTimeout: 20 * time.Millisecond}
		got, err := e.ResolveReferenceStock(ctx, 7, items)
		if err != nil || !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("got %s, %v", got, err)
		}
	})

	t.Run("unknown product falls back", func(t *testing.T) {
		oracle := &fakeOracle{found: false}
		e := &DivergenceEvaluator{Oracle: oracle, Logger: quietLogger(), CompanyCode: "3"}
		got, err := e.ResolveReferenceStock(ctx, 7, items)
		if err != nil || !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("got %s, %v", got, err)
		}
		if oracle.calls != 1 {
			t.Fatalf("oracle calls: %d", oracle.calls)
		}
	})

	t.Run("request company code wins over default", func(t *testing.T) {
		oracle := &fakeOracle{found: false}
		e := &DivergenceEvaluator{Oracle: oracle, Logger: quietLogger(), CompanyCode: "3"}
		reqCtx := utils.SetCompanyCodeInContext(ctx, "12")
		if _, err := e.ResolveReferenceStock(reqCtx, 7, items); err != nil {
			t.Fatal(err)
		}
		if _, err := e.ResolveReferenceStock(ctx, 7, items); err != nil {
			t.Fatal(err)
		}
		if len(oracle.companyCodes) != 2 || oracle.companyCodes[0] != "12" || oracle.companyCodes[1] != "3" {
			t.Fatalf("company codes: %v", oracle.companyCodes)
		}
	})

	t.Run("invalid company code propagates", func(t *testing.T) {
		oracle := &fakeOracle{err: utils.NewValidationError("company_code", "must contain digits only")}
		e := &DivergenceEvaluator{Oracle: oracle, Logger: quietLogger(), CompanyCode: "x"}
		if _, err := e.ResolveReferenceStock(ctx, 7, items); !utils.IsValidationError(err) {
			t.Fatalf("expected ValidationError; got %v", err)
		}
	})

	t.Run("live equal to snapshot needs no write", func(t *testing.T) {
		e := &DivergenceEvaluator{Oracle: &fakeOracle{stock: decimal.NewFromInt(20), found: true}, Logger: quietLogger(), CompanyCode: "3"}
		got, err := e.ResolveReferenceStock(ctx, 7, items)
		if err != nil || !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("got %s, %v", got, err)
		}
	})
}
