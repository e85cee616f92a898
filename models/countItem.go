package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CountItem is one product at one location, shared by every round of its group.
// Rows for the same product/day share ItemKey; KeySlot (1 or 2) backs the two-slot rule.
type CountItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ItemKey         string          `gorm:"size:100;not null;uniqueIndex:uniq_item_slot,priority:1" json:"item_key"`
	KeySlot         int             `gorm:"not null;uniqueIndex:uniq_item_slot,priority:2" json:"key_slot"`
	GroupKey        string          `gorm:"size:64;not null;index" json:"group_key"`
	CountDate       time.Time       `gorm:"type:date;not null;index:idx_item_date_product,priority:1" json:"count_date"`
	ProductCode     int             `gorm:"not null;index:idx_item_date_product,priority:2;index" json:"product_code"`
	Description     *string         `gorm:"size:255" json:"description"`
	Brand           *string         `gorm:"size:100" json:"brand"`
	ManufacturerRef *string         `gorm:"size:100" json:"manufacturer_ref"`
	SupplierRef     *string         `gorm:"size:100" json:"supplier_ref"`
	Location        *string         `gorm:"size:100" json:"location"`
	Unit            *string         `gorm:"size:20" json:"unit"`
	Applications    *string         `gorm:"type:text" json:"applications"`
	ExitQty         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"exit_qty"`
	StockSnapshot   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"stock_snapshot"`
	ReservedQty     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"reserved_qty"`
	NeedsReview     bool            `gorm:"not null;default:false;index" json:"needs_review"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewCountItemRow is one product row as sent by the counting client.
type NewCountItemRow struct {
	ProductCode     int     `json:"product_code" binding:"required"`
	CountDate       string  `json:"count_date"`
	Description     string  `json:"description"`
	Brand           string  `json:"brand"`
	ManufacturerRef string  `json:"manufacturer_ref"`
	SupplierRef     string  `json:"supplier_ref"`
	Location        string  `json:"location"`
	Unit            string  `json:"unit"`
	Applications    string  `json:"applications"`
	ExitQty         float64 `json:"exit_qty"`
	StockSnapshot   float64 `json:"stock_snapshot"`
	ReservedQty     float64 `json:"reserved_qty"`
}

func cleanText(v string) *string {
	v = strings.TrimSpace(strings.ReplaceAll(v, "\x00", ""))
	if v == "" {
		return nil
	}
	return &v
}

func finiteDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(4)
}

// parseCountDate accepts a calendar date or an RFC 3339 timestamp; anything else counts as today.
func parseCountDate(v string, now time.Time) time.Time {
	v = strings.TrimSpace(strings.ReplaceAll(v, "\x00", ""))
	if t, err := time.Parse(utils.DateLayout, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return truncateDay(t.UTC())
	}
	return truncateDay(now.UTC())
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// sanitize turns a client row into an unsaved item. Key and slot are assigned later.
func (row NewCountItemRow) sanitize(groupKey string, now time.Time) (CountItem, error) {
	if row.ProductCode <= 0 {
		return CountItem{}, utils.NewValidationError("product_code", "must be a positive number")
	}
	return CountItem{
		GroupKey:        groupKey,
		CountDate:       parseCountDate(row.CountDate, now),
		ProductCode:     row.ProductCode,
		Description:     cleanText(row.Description),
		Brand:           cleanText(row.Brand),
		ManufacturerRef: cleanText(row.ManufacturerRef),
		SupplierRef:     cleanText(row.SupplierRef),
		Location:        cleanText(row.Location),
		Unit:            cleanText(row.Unit),
		Applications:    cleanText(row.Applications),
		ExitQty:         finiteDecimal(row.ExitQty),
		StockSnapshot:   finiteDecimal(row.StockSnapshot),
		ReservedQty:     finiteDecimal(row.ReservedQty),
	}, nil
}

// BaseItemKey is the key shared by all rows of one product on one day.
func BaseItemKey(productCode int, countDate time.Time) string {
	return fmt.Sprintf("%d-%s", productCode, countDate.Format(utils.DateLayout))
}

// VersionedItemKey returns the base key for version 1 and "<base>-vN" after that.
func VersionedItemKey(baseKey string, version int) string {
	if version <= 1 {
		return baseKey
	}
	return fmt.Sprintf("%s-v%d", baseKey, version)
}

// findItemSlot walks versions upward from fromVersion until a key has fewer than
// MaxItemsPerKey rows. It never steps back to a lower version.
func findItemSlot(baseKey string, fromVersion int, usage func(key string) (int64, error)) (key string, slot int, version int, err error) {
	if fromVersion < 1 {
		fromVersion = 1
	}
	for version = fromVersion; ; version++ {
		key = VersionedItemKey(baseKey, version)
		n, err := usage(key)
		if err != nil {
			return "", 0, 0, err
		}
		if n < MaxItemsPerKey {
			return key, int(n) + 1, version, nil
		}
	}
}

const maxSlotClaimAttempts = 8

// claimItemSlot inserts item under the first free key slot. A concurrent insert that wins
// the same slot surfaces as a duplicate-key error and the search resumes from the same version.
func claimItemSlot(ctx context.Context, tx *gorm.DB, item *CountItem) error {
	baseKey := BaseItemKey(item.ProductCode, item.CountDate)
	usage := func(key string) (int64, error) {
		var n int64
		err := tx.WithContext(ctx).Model(&CountItem{}).Where("item_key = ?", key).Count(&n).Error
		return n, err
	}

	version := 1
	for attempt := 1; attempt <= maxSlotClaimAttempts; attempt++ {
		key, slot, v, err := findItemSlot(baseKey, version, usage)
		if err != nil {
			return err
		}
		version = v
		item.ID = 0
		item.ItemKey = key
		item.KeySlot = slot
		err = tx.WithContext(ctx).Create(item).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKeyErr(err) {
			return err
		}
	}
	return fmt.Errorf("could not claim an item slot for %s after %d attempts", baseKey, maxSlotClaimAttempts)
}

// ListGroupItems returns the items of a group in creation order.
func ListGroupItems(ctx context.Context, tx *gorm.DB, groupKey string) ([]CountItem, error) {
	var items []CountItem
	if err := tx.WithContext(ctx).Where("group_key = ?", groupKey).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// itemsForKeys returns every item carrying one of the keys, across all groups.
func itemsForKeys(ctx context.Context, tx *gorm.DB, itemKeys []string) ([]CountItem, error) {
	itemKeys = utils.UniqueSlice(itemKeys)
	if len(itemKeys) == 0 {
		return nil, nil
	}
	var items []CountItem
	if err := tx.WithContext(ctx).Where("item_key IN ?", itemKeys).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func getCountItem(ctx context.Context, tx *gorm.DB, id int) (*CountItem, error) {
	var item CountItem
	err := tx.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("item_id", "item %d not found", id)
		}
		return nil, err
	}
	return &item, nil
}

// distinctItemKeys keeps first-seen order.
func distinctItemKeys(items []CountItem) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.ItemKey)
	}
	return utils.UniqueSlice(keys)
}
