package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CountLogEntry is one user's count of one item in one round. A resubmission replaces it.
type CountLogEntry struct {
	ID          int             `gorm:"primary_key" json:"id"`
	RoundId     int             `gorm:"not null;uniqueIndex:uniq_log_round_item_user,priority:1" json:"round_id"`
	ItemId      int             `gorm:"not null;uniqueIndex:uniq_log_round_item_user,priority:2" json:"item_id"`
	UserId      int             `gorm:"not null;uniqueIndex:uniq_log_round_item_user,priority:3" json:"user_id"`
	ItemKey     string          `gorm:"size:100;not null;index" json:"item_key"`
	StockAtTime decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"stock_at_time"`
	CountedQty  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"counted_qty"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

func (CountLogEntry) TableName() string {
	return "count_logs"
}

type NewCountLog struct {
	RoundId     int             `json:"round_id" binding:"required"`
	ItemId      int             `json:"item_id" binding:"required"`
	UserId      int             `json:"user_id"`
	StockAtTime decimal.Decimal `json:"stock_at_time"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
}

// AggregatedLog is the per item key total of one round.
type AggregatedLog struct {
	ItemKey     string          `json:"item_key"`
	ProductCode int             `json:"product_code"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	Entries     int             `json:"entries"`
}

// RecordCount upserts the (round, item, user) entry in one statement. The round row is
// share-locked so a concurrent close or group delete cannot interleave with the write.
func RecordCount(ctx context.Context, input *NewCountLog) (*CountLogEntry, error) {
	if input.CountedQty.IsNegative() {
		return nil, utils.NewValidationError("counted_qty", "must not be negative")
	}
	db := config.GetDB()

	item, err := getCountItem(ctx, db, input.ItemId)
	if err != nil {
		return nil, err
	}
	if _, err := GetActiveCollaborator(ctx, db, input.UserId); err != nil {
		return nil, err
	}

	var saved CountLogEntry
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		round, err := getActiveRound(ctx, tx.Clauses(clause.Locking{Strength: "SHARE"}), input.RoundId)
		if err != nil {
			return err
		}
		if item.GroupKey != round.GroupKey {
			return utils.NewValidationError("item_id", "item %d does not belong to group %s", item.ID, round.GroupKey)
		}
		if round.RoundState() != RoundStateReleased {
			return utils.NewConflictError("round %d of group %s is locked", round.RoundNumber, round.GroupKey)
		}

		entry := CountLogEntry{
			RoundId:     round.ID,
			ItemId:      item.ID,
			UserId:      input.UserId,
			ItemKey:     item.ItemKey,
			StockAtTime: input.StockAtTime,
			CountedQty:  input.CountedQty,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "round_id"}, {Name: "item_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stock_at_time", "counted_qty", "created_at"}),
		}).Create(&entry).Error; err != nil {
			return err
		}

		// ON DUPLICATE KEY UPDATE does not report the surviving row id reliably.
		return tx.Where("round_id = ? AND item_id = ? AND user_id = ?", round.ID, item.ID, input.UserId).
			Take(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// AggregateCounted sums counted quantity over every current entry whose item carries one of
// the keys and whose active round has roundNumber, across all groups and users.
func AggregateCounted(ctx context.Context, tx *gorm.DB, itemKeys []string, roundNumber int) (decimal.Decimal, error) {
	itemKeys = utils.UniqueSlice(itemKeys)
	if len(itemKeys) == 0 {
		return decimal.Zero, nil
	}
	var agg struct {
		Total decimal.NullDecimal
	}
	err := tx.WithContext(ctx).
		Table("count_logs AS l").
		Select("SUM(l.counted_qty) AS total").
		Joins("JOIN count_rounds AS r ON r.id = l.round_id").
		Where("l.item_key IN ? AND r.round_number = ? AND r.status = ?", itemKeys, roundNumber, RoundStatusActive).
		Scan(&agg).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !agg.Total.Valid {
		return decimal.Zero, nil
	}
	return agg.Total.Decimal, nil
}

// countedItemIds returns the ids of items (among itemIds) having at least one entry in an
// active round with roundNumber.
func countedItemIds(ctx context.Context, tx *gorm.DB, itemIds []int, roundNumber int) (map[int]bool, error) {
	counted := make(map[int]bool)
	if len(itemIds) == 0 {
		return counted, nil
	}
	var ids []int
	err := tx.WithContext(ctx).
		Table("count_logs AS l").
		Distinct().
		Joins("JOIN count_rounds AS r ON r.id = l.round_id").
		Where("l.item_id IN ? AND r.round_number = ? AND r.status = ?", itemIds, roundNumber, RoundStatusActive).
		Pluck("l.item_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		counted[id] = true
	}
	return counted, nil
}

func ListLogsByRound(ctx context.Context, roundId int) ([]*CountLogEntry, error) {
	db := config.GetDB()
	if _, err := getActiveRound(ctx, db, roundId); err != nil {
		return nil, err
	}
	var logs []*CountLogEntry
	if err := db.WithContext(ctx).Where("round_id = ?", roundId).Order("id ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregatedLogsByRound totals one round's entries per item key.
func AggregatedLogsByRound(ctx context.Context, roundId int) ([]*AggregatedLog, error) {
	db := config.GetDB()
	if _, err := getActiveRound(ctx, db, roundId); err != nil {
		return nil, err
	}
	var rows []*AggregatedLog
	err := db.WithContext(ctx).
		Table("count_logs AS l").
		Select("l.item_key AS item_key, MIN(i.product_code) AS product_code, SUM(l.counted_qty) AS counted_qty, COUNT(*) AS entries").
		Joins("JOIN count_items AS i ON i.id = l.item_id").
		Where("l.round_id = ?", roundId).
		Group("l.item_key").
		Order("l.item_key ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func groupHasLogs(ctx context.Context, tx *gorm.DB, roundIds []int) (bool, error) {
	if len(roundIds) == 0 {
		return false, nil
	}
	var n int64
	if err := tx.WithContext(ctx).Model(&CountLogEntry{}).Where("round_id IN ?", roundIds).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
