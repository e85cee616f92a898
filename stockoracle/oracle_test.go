package stockoracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
)

type countingOracle struct {
	stock decimal.Decimal
	found bool
	err   error
	calls int
}

func (o *countingOracle) FetchLiveStock(ctx context.Context, productCode int, companyCode string) (decimal.Decimal, bool, error) {
	o.calls++
	return o.stock, o.found, o.err
}

func TestERPOracleRejectsBadCompanyCode(t *testing.T) {
	o := NewERPOracle(nil)
	for _, code := range []string{"", "3a", "1;DROP", " 3"} {
		if _, _, err := o.FetchLiveStock(context.Background(), 10, code); !utils.IsValidationError(err) {
			t.Fatalf("company %q: expected ValidationError; got %v", code, err)
		}
	}
}

func TestERPOracleNotConfigured(t *testing.T) {
	o := NewERPOracle(nil)
	_, found, err := o.FetchLiveStock(context.Background(), 10, "3")
	if !errors.Is(err, ErrNotConfigured) || found {
		t.Fatalf("expected ErrNotConfigured; got found=%t err=%v", found, err)
	}
}

func TestNewERPOracleQueryOverride(t *testing.T) {
	if o := NewERPOracle(nil); o.Query != defaultStockQuery {
		t.Fatalf("expected default query")
	}
	t.Setenv("ERP_STOCK_QUERY", "SELECT qty FROM stock WHERE company = ? AND code = ?")
	if o := NewERPOracle(nil); o.Query != "SELECT qty FROM stock WHERE company = ? AND code = ?" {
		t.Fatalf("override ignored: %q", o.Query)
	}
}

func TestNewCachedOracleDisabledByZeroTTL(t *testing.T) {
	next := &countingOracle{}
	if got := NewCachedOracle(next, 0, nil); got != next {
		t.Fatalf("zero ttl should return the wrapped oracle")
	}
	if _, ok := NewCachedOracle(next, time.Second, nil).(*CachedOracle); !ok {
		t.Fatalf("positive ttl should wrap")
	}
}

// Without redis the cache degrades to a pass-through.
func TestCachedOracleWithoutRedis(t *testing.T) {
	next := &countingOracle{stock: decimal.NewFromInt(12), found: true}
	o := NewCachedOracle(next, time.Minute, nil)

	for i := 0; i < 2; i++ {
		stock, found, err := o.FetchLiveStock(context.Background(), 10, "3")
		if err != nil || !found || !stock.Equal(decimal.NewFromInt(12)) {
			t.Fatalf("got %s %t %v", stock, found, err)
		}
	}
	if next.calls != 2 {
		t.Fatalf("expected pass-through calls; got %d", next.calls)
	}

	if _, _, err := o.FetchLiveStock(context.Background(), 10, "x"); !utils.IsValidationError(err) {
		t.Fatalf("expected ValidationError; got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("invalid company must not reach the ERP")
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("3", 4711); got != "LiveStock:3:4711" {
		t.Fatalf("got %q", got)
	}
}
