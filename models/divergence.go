package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StockOracle answers the live system stock of a product in the legacy ERP.
// found is false when the ERP has no row for the product.
type StockOracle interface {
	FetchLiveStock(ctx context.Context, productCode int, companyCode string) (stock decimal.Decimal, found bool, err error)
}

// LiveStock is a single answer of the stock oracle.
type LiveStock struct {
	ProductCode int             `json:"product_code"`
	CompanyCode string          `json:"company_code"`
	Stock       decimal.Decimal `json:"stock"`
}

// Evaluation is the divergence picture of one product within one round.
type Evaluation struct {
	ProductCode      int             `json:"product_code"`
	RoundNumber      int             `json:"round_number"`
	ItemKeys         []string        `json:"item_keys"`
	ReferenceStock   decimal.Decimal `json:"reference_stock"`
	RealSum          decimal.Decimal `json:"real_sum"`
	Divergence       decimal.Decimal `json:"divergence"`
	Diverges         bool            `json:"diverges"`
	Locations        int             `json:"locations"`
	CountedLocations int             `json:"counted_locations"`
	Complete         bool            `json:"complete"`
	NeedsReview      bool            `json:"needs_review"`
}

type DivergenceEvaluator struct {
	DB            *gorm.DB
	Oracle        StockOracle
	Logger        *logrus.Logger
	CompanyCode   string
	OracleTimeout time.Duration
}

func NewDivergenceEvaluator(db *gorm.DB, oracle StockOracle, logger *logrus.Logger) *DivergenceEvaluator {
	return &DivergenceEvaluator{
		DB:            db,
		Oracle:        oracle,
		Logger:        logger,
		CompanyCode:   config.CompanyCode(),
		OracleTimeout: config.StockOracleTimeout(),
	}
}

// ResolveReviewFlag applies the hybrid trust policy. A single-location product keeps the
// caller's flag. A multi-location product keeps it only while some location is still
// uncounted in the round; once all are counted the computed divergence decides.
func ResolveReviewFlag(locations int, countedLocations int, callerFlag bool, diverges bool) bool {
	if locations <= 1 {
		return callerFlag
	}
	if countedLocations < locations {
		return callerFlag
	}
	return diverges
}

// LatestSnapshot is the most recently persisted stock snapshot among items; ties go to the
// newest row.
func LatestSnapshot(items []CountItem) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	latest := items[0]
	for _, it := range items[1:] {
		if it.UpdatedAt.After(latest.UpdatedAt) || (it.UpdatedAt.Equal(latest.UpdatedAt) && it.ID > latest.ID) {
			latest = it
		}
	}
	return latest.StockSnapshot
}

// companyCode is the request's ERP company, falling back to the evaluator default.
func (e *DivergenceEvaluator) companyCode(ctx context.Context) string {
	if code, ok := utils.GetCompanyCodeFromContext(ctx); ok && code != "" {
		return code
	}
	return e.CompanyCode
}

// ResolveReferenceStock returns the product's reference stock: the latest persisted snapshot,
// replaced by the live ERP figure when the oracle answers in time. A live figure is written
// back onto every item passed in. Oracle failures fall back to the snapshot.
func (e *DivergenceEvaluator) ResolveReferenceStock(ctx context.Context, productCode int, items []CountItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, nil
	}
	reference := LatestSnapshot(items)
	if e.Oracle == nil {
		return reference, nil
	}

	oracleCtx := ctx
	if e.OracleTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(ctx, e.OracleTimeout)
		defer cancel()
	}
	live, found, err := e.Oracle.FetchLiveStock(oracleCtx, productCode, e.companyCode(ctx))
	if err != nil {
		if utils.IsValidationError(err) {
			return decimal.Zero, err
		}
		e.warn(productCode, "live stock lookup failed; using stored snapshot: "+err.Error())
		return reference, nil
	}
	if !found {
		return reference, nil
	}

	keys := distinctItemKeys(items)
	if !live.Equal(reference) {
		if err := e.DB.WithContext(ctx).Model(&CountItem{}).
			Where("item_key IN ?", keys).
			Update("stock_snapshot", live).Error; err != nil {
			config.LogError(e.logger(), "DivergenceEvaluator", "ResolveReferenceStock", "persist refreshed stock", keys, err)
		}
	}
	return live, nil
}

// Compute resolves the reference stock and sums the round's counts for the product's keys.
// It does not write any review flag.
func (e *DivergenceEvaluator) Compute(ctx context.Context, productCode int, roundNumber int, itemKeys []string) (*Evaluation, error) {
	if !IsValidRoundNumber(roundNumber) {
		return nil, utils.NewValidationError("round_number", "must be 1, 2 or 3")
	}
	db := e.DB.WithContext(ctx)
	items, err := itemsForKeys(ctx, db, itemKeys)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, utils.NewValidationError("item_key", "no items for product %d", productCode)
	}

	reference, err := e.ResolveReferenceStock(ctx, productCode, items)
	if err != nil {
		return nil, err
	}
	keys := distinctItemKeys(items)
	realSum, err := AggregateCounted(ctx, db, keys, roundNumber)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	counted, err := countedItemIds(ctx, db, ids, roundNumber)
	if err != nil {
		return nil, err
	}

	divergence := realSum.Sub(reference)
	return &Evaluation{
		ProductCode:      productCode,
		RoundNumber:      roundNumber,
		ItemKeys:         keys,
		ReferenceStock:   reference,
		RealSum:          realSum,
		Divergence:       divergence,
		Diverges:         !divergence.IsZero(),
		Locations:        len(items),
		CountedLocations: len(counted),
		Complete:         len(counted) == len(items),
	}, nil
}

// Evaluate runs Compute, applies the hybrid trust policy and persists the decision on every
// item sharing the product's keys.
func (e *DivergenceEvaluator) Evaluate(ctx context.Context, productCode int, roundNumber int, itemKeys []string, callerFlag bool) (*Evaluation, error) {
	ev, err := e.Compute(ctx, productCode, roundNumber, itemKeys)
	if err != nil {
		return nil, err
	}
	ev.NeedsReview = ResolveReviewFlag(ev.Locations, ev.CountedLocations, callerFlag, ev.Diverges)
	if err := setReviewFlag(ctx, e.DB, ev.ItemKeys, ev.NeedsReview); err != nil {
		return nil, err
	}
	return ev, nil
}

// SetItemReviewFlag evaluates the item's key in the round of the key's most recent count.
// Without any count the caller's flag is stored as is.
func (e *DivergenceEvaluator) SetItemReviewFlag(ctx context.Context, itemKey string, callerFlag bool, itemId int) (*CountItem, error) {
	db := e.DB.WithContext(ctx)
	item, err := getCountItem(ctx, db, itemId)
	if err != nil {
		return nil, err
	}
	if item.ItemKey != itemKey {
		return nil, utils.NewValidationError("item_key", "item %d does not carry key %s", itemId, itemKey)
	}

	roundNumber, found, err := latestCountedRound(ctx, db, itemKey)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := setReviewFlag(ctx, e.DB, []string{itemKey}, callerFlag); err != nil {
			return nil, err
		}
	} else if _, err := e.Evaluate(ctx, item.ProductCode, roundNumber, []string{itemKey}, callerFlag); err != nil {
		return nil, err
	}

	return getCountItem(ctx, db, itemId)
}

// latestCountedRound is the round number of the most recent entry for the key.
func latestCountedRound(ctx context.Context, tx *gorm.DB, itemKey string) (int, bool, error) {
	var rows []struct {
		RoundNumber int
	}
	err := tx.WithContext(ctx).
		Table("count_logs AS l").
		Select("r.round_number AS round_number").
		Joins("JOIN count_rounds AS r ON r.id = l.round_id").
		Where("l.item_key = ? AND r.status = ?", itemKey, RoundStatusActive).
		Order("l.created_at DESC, l.id DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].RoundNumber, true, nil
}

func setReviewFlag(ctx context.Context, db *gorm.DB, itemKeys []string, needsReview bool) error {
	if len(itemKeys) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&CountItem{}).
			Where("item_key IN ?", itemKeys).
			Update("needs_review", needsReview).Error
	})
}

func (e *DivergenceEvaluator) logger() *logrus.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return config.GetLogger()
}

func (e *DivergenceEvaluator) warn(productCode int, msg string) {
	e.logger().WithFields(logrus.Fields{
		"module":       "DivergenceEvaluator",
		"product_code": productCode,
	}).Warn(msg)
}
