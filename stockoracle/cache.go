package stockoracle

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

/*
caches:
	LiveStock:$companyCode:$productCode
*/

type cachedStock struct {
	Stock decimal.Decimal `json:"stock"`
}

// CachedOracle keeps found answers of Next in redis for TTL. Misses and errors are not cached.
type CachedOracle struct {
	Next   models.StockOracle
	TTL    time.Duration
	Logger *logrus.Logger
}

var _ models.StockOracle = (*CachedOracle)(nil)

func NewCachedOracle(next models.StockOracle, ttl time.Duration, logger *logrus.Logger) models.StockOracle {
	if ttl <= 0 {
		return next
	}
	return &CachedOracle{Next: next, TTL: ttl, Logger: logger}
}

func cacheKey(companyCode string, productCode int) string {
	return fmt.Sprintf("LiveStock:%s:%d", companyCode, productCode)
}

func (o *CachedOracle) FetchLiveStock(ctx context.Context, productCode int, companyCode string) (decimal.Decimal, bool, error) {
	if err := utils.ValidateCompanyCode(companyCode); err != nil {
		return decimal.Zero, false, err
	}
	key := cacheKey(companyCode, productCode)

	var cached cachedStock
	exists, err := config.GetRedisObject(key, &cached)
	if err != nil && o.Logger != nil {
		o.Logger.WithFields(logrus.Fields{
			"module": "CachedOracle",
			"key":    key,
		}).Warn("live stock cache read failed: " + err.Error())
	}
	if err == nil && exists {
		return cached.Stock, true, nil
	}

	stock, found, err := o.Next.FetchLiveStock(ctx, productCode, companyCode)
	if err != nil || !found {
		return stock, found, err
	}
	if err := config.SetRedisObject(key, cachedStock{Stock: stock}, o.TTL); err != nil && o.Logger != nil {
		o.Logger.WithFields(logrus.Fields{
			"module": "CachedOracle",
			"key":    key,
		}).Warn("live stock cache write failed: " + err.Error())
	}
	return stock, true, nil
}
