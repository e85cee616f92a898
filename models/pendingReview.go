package models

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RoundHistoryEntry struct {
	UserId    int             `json:"user_id"`
	ItemId    int             `json:"item_id"`
	UserName  string          `json:"user_name"`
	Qty       decimal.Decimal `json:"qty"`
	Location  *string         `json:"location"`
	CountedAt time.Time       `json:"counted_at"`
}

type RoundHistory struct {
	Total decimal.Decimal     `json:"total"`
	Logs  []RoundHistoryEntry `json:"logs"`
}

// PendingRound is one round of a pending item's history, flattened for list renderers.
type PendingRound struct {
	RoundNumber int                 `json:"round_number"`
	Total       decimal.Decimal     `json:"total"`
	Difference  decimal.Decimal     `json:"difference"`
	Logs        []RoundHistoryEntry `json:"logs"`
}

// PendingReviewItem is one product awaiting an audit decision after its final round closed.
type PendingReviewItem struct {
	GroupKey       string                  `json:"group_key"`
	ProductCode    int                     `json:"product_code"`
	Description    *string                 `json:"description"`
	SnapshotStock  decimal.Decimal         `json:"snapshot_stock"`
	LiveStock      *decimal.Decimal        `json:"live_stock"`
	Locations      []*string               `json:"locations"`
	Floor          *string                 `json:"floor"`
	History        map[int]*RoundHistory   `json:"history"`
	Differences    map[int]decimal.Decimal `json:"differences"`
	AlreadyAudited bool                    `json:"already_audited"`
	AuditId        *int                    `json:"audit_id"`
}

type historyLogRow struct {
	ItemId      int
	UserId      int
	RoundNumber int
	UserName    string
	CountedQty  decimal.Decimal
	CreatedAt   time.Time
}

// PendingReview lists products flagged for review on date (optionally only groups counted
// on floor) whose final round is closed, with their consolidated count history.
// A product whose final round matches its snapshot is auto-resolved on the way.
func (l *AuditLedger) PendingReview(ctx context.Context, date time.Time, floor string) ([]*PendingReviewItem, error) {
	db := l.DB.WithContext(ctx)
	day := truncateDay(date)

	var floorGroups []string
	if floor != "" {
		start, end := utils.DayRange(day)
		if err := db.Model(&CountRound{}).
			Where("created_at BETWEEN ? AND ? AND floor = ?", start, end, floor).
			Distinct().
			Pluck("group_key", &floorGroups).Error; err != nil {
			return nil, err
		}
		if len(floorGroups) == 0 {
			return []*PendingReviewItem{}, nil
		}
	}

	flaggedQuery := db.Model(&CountItem{}).Where("count_date = ? AND needs_review = ?", day, true)
	if floorGroups != nil {
		flaggedQuery = flaggedQuery.Where("group_key IN ?", floorGroups)
	}
	var productCodes []int
	if err := flaggedQuery.Distinct().Order("product_code ASC").Pluck("product_code", &productCodes).Error; err != nil {
		return nil, err
	}
	if len(productCodes) == 0 {
		return []*PendingReviewItem{}, nil
	}

	var items []CountItem
	if err := db.Where("count_date = ? AND product_code IN ?", day, productCodes).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	byProduct := make(map[int][]CountItem)
	for _, it := range items {
		byProduct[it.ProductCode] = append(byProduct[it.ProductCode], it)
	}

	result := make([]*PendingReviewItem, 0, len(productCodes))
	for _, code := range productCodes {
		productItems := byProduct[code]
		if len(productItems) == 0 {
			continue
		}
		entry, err := l.pendingReviewEntry(ctx, db, code, productItems)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (l *AuditLedger) pendingReviewEntry(ctx context.Context, db *gorm.DB, productCode int, items []CountItem) (*PendingReviewItem, error) {
	groupKeys := make([]string, 0, len(items))
	itemIds := make([]int, 0, len(items))
	locationById := make(map[int]*string, len(items))
	locations := make([]*string, 0, len(items))
	for _, it := range items {
		groupKeys = append(groupKeys, it.GroupKey)
		itemIds = append(itemIds, it.ID)
		locationById[it.ID] = it.Location
		locations = append(locations, it.Location)
	}
	groupKeys = utils.UniqueSlice(groupKeys)

	var closed []CountRound
	if err := db.Where("group_key IN ? AND round_number = ? AND is_released = ? AND status = ?",
		groupKeys, FinalRoundNumber, false, RoundStatusActive).
		Order("id ASC").
		Find(&closed).Error; err != nil {
		return nil, err
	}
	if len(closed) == 0 {
		return nil, nil
	}
	mainRound := closed[0]

	var existing AuditRecord
	res := db.Where("product_code = ? AND status = ? AND group_key IN ?", productCode, AuditStatusActive, groupKeys).
		Order("id ASC").
		Limit(1).
		Find(&existing)
	if res.Error != nil {
		return nil, res.Error
	}
	audited := res.RowsAffected > 0

	history := map[int]*RoundHistory{}
	for n := FirstRoundNumber; n <= FinalRoundNumber; n++ {
		history[n] = &RoundHistory{Total: decimal.Zero, Logs: []RoundHistoryEntry{}}
	}
	var rows []historyLogRow
	if err := db.Table("count_logs AS l").
		Select("l.item_id AS item_id, l.user_id AS user_id, r.round_number AS round_number, c.name AS user_name, l.counted_qty AS counted_qty, l.created_at AS created_at").
		Joins("JOIN count_rounds AS r ON r.id = l.round_id").
		Joins("LEFT JOIN collaborators AS c ON c.id = l.user_id").
		Where("l.item_id IN ? AND r.status = ?", itemIds, RoundStatusActive).
		Order("l.created_at ASC, l.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		h, ok := history[row.RoundNumber]
		if !ok {
			continue
		}
		h.Logs = append(h.Logs, RoundHistoryEntry{
			UserId:    row.UserId,
			ItemId:    row.ItemId,
			UserName:  row.UserName,
			Qty:       row.CountedQty,
			Location:  locationById[row.ItemId],
			CountedAt: row.CreatedAt,
		})
		h.Total = h.Total.Add(row.CountedQty)
	}

	snapshot := LatestSnapshot(items)
	differences := make(map[int]decimal.Decimal, len(history))
	for n, h := range history {
		differences[n] = h.Total.Sub(snapshot)
	}

	entry := &PendingReviewItem{
		GroupKey:       mainRound.GroupKey,
		ProductCode:    productCode,
		Description:    items[0].Description,
		SnapshotStock:  snapshot,
		LiveStock:      l.liveStock(ctx, productCode),
		Locations:      locations,
		Floor:          mainRound.Floor,
		History:        history,
		Differences:    differences,
		AlreadyAudited: audited,
	}
	if audited {
		entry.AuditId = &existing.ID
	} else if differences[FinalRoundNumber].IsZero() {
		if audit := l.AutoResolve(ctx, mainRound.GroupKey, productCode); audit != nil {
			entry.AlreadyAudited = true
			entry.AuditId = &audit.ID
		}
	}
	return entry, nil
}

// liveStock asks the oracle for the current ERP stock; nil when it cannot answer.
func (l *AuditLedger) liveStock(ctx context.Context, productCode int) *decimal.Decimal {
	if l.Evaluator == nil || l.Evaluator.Oracle == nil {
		return nil
	}
	oracleCtx := ctx
	if l.Evaluator.OracleTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(ctx, l.Evaluator.OracleTimeout)
		defer cancel()
	}
	stock, found, err := l.Evaluator.Oracle.FetchLiveStock(oracleCtx, productCode, l.Evaluator.companyCode(ctx))
	if err != nil {
		l.Evaluator.warn(productCode, "live stock lookup failed for pending review: "+err.Error())
		return nil
	}
	if !found {
		return nil
	}
	return &stock
}

// SortedRounds returns the history round numbers in order, for renderers.
func (p *PendingReviewItem) SortedRounds() []int {
	rounds := make([]int, 0, len(p.History))
	for n := range p.History {
		rounds = append(rounds, n)
	}
	sort.Ints(rounds)
	return rounds
}

// Rounds returns the history in round order with each round's difference to the snapshot.
func (p *PendingReviewItem) Rounds() []*PendingRound {
	rounds := make([]*PendingRound, 0, len(p.History))
	for _, n := range p.SortedRounds() {
		h := p.History[n]
		rounds = append(rounds, &PendingRound{
			RoundNumber: n,
			Total:       h.Total,
			Difference:  p.Differences[n],
			Logs:        h.Logs,
		})
	}
	return rounds
}
