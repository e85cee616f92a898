package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const AutoResolveNote = "third count matched"

// AuditRecord is a corrective stock movement for one product of one count group.
// MovementQty is always a magnitude; the sign lives in FlaggedDifference.
type AuditRecord struct {
	ID                int               `gorm:"primary_key" json:"id"`
	GroupKey          string            `gorm:"size:64;not null;index" json:"group_key"`
	ProductCode       int               `gorm:"not null;index:idx_audit_product_status,priority:1" json:"product_code"`
	MovementKind      AuditMovementKind `gorm:"size:10;not null" json:"movement_kind"`
	MovementQty       decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"movement_qty"`
	FlaggedDifference decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"flagged_difference"`
	Note              *string           `gorm:"type:text" json:"note"`
	UserId            int               `gorm:"not null;index" json:"user_id"`
	Status            AuditStatus       `gorm:"size:10;not null;default:'Active';index:idx_audit_product_status,priority:2" json:"status"`
	CreatedAt         time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	VoidedAt          *time.Time        `json:"voided_at"`
	VoidedBy          *int              `json:"voided_by"`
}

type NewAudit struct {
	GroupKey     string            `json:"group_key" binding:"required"`
	ProductCode  int               `json:"product_code" binding:"required"`
	MovementKind AuditMovementKind `json:"movement_kind" binding:"required"`
	Quantity     decimal.Decimal   `json:"quantity"`
	Note         string            `json:"note"`
	UserId       int               `json:"user_id"`
}

// AuditLedger records corrective movements, at most one active per product across the
// groups that share its item keys.
type AuditLedger struct {
	DB           *gorm.DB
	Evaluator    *DivergenceEvaluator
	Logger       *logrus.Logger
	SystemUserId int
}

func NewAuditLedger(db *gorm.DB, evaluator *DivergenceEvaluator, logger *logrus.Logger) *AuditLedger {
	return &AuditLedger{
		DB:           db,
		Evaluator:    evaluator,
		Logger:       logger,
		SystemUserId: config.SystemAuditUserId(),
	}
}

// SignedDifference returns the flagged difference and stored magnitude for a movement.
func SignedDifference(kind AuditMovementKind, qty decimal.Decimal) (flagged decimal.Decimal, magnitude decimal.Decimal) {
	switch kind {
	case AuditMovementReduce:
		return qty.Abs().Neg(), qty.Abs()
	case AuditMovementInclude:
		return qty.Abs(), qty.Abs()
	default:
		return decimal.Zero, decimal.Zero
	}
}

// siblingGroupKeys returns every group holding an item key that the product carries in groupKey.
func siblingGroupKeys(ctx context.Context, tx *gorm.DB, groupKey string, productCode int) ([]string, error) {
	var keys []string
	if err := tx.WithContext(ctx).Model(&CountItem{}).
		Where("group_key = ? AND product_code = ?", groupKey, productCode).
		Distinct().
		Pluck("item_key", &keys).Error; err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	var groups []string
	if err := tx.WithContext(ctx).Model(&CountItem{}).
		Where("item_key IN ?", keys).
		Distinct().
		Pluck("group_key", &groups).Error; err != nil {
		return nil, err
	}
	return utils.UniqueSlice(append([]string{groupKey}, groups...)), nil
}

func activeAuditExists(ctx context.Context, tx *gorm.DB, productCode int, groupKeys []string) (bool, error) {
	if len(groupKeys) == 0 {
		return false, nil
	}
	var n int64
	if err := tx.WithContext(ctx).Model(&AuditRecord{}).
		Where("product_code = ? AND status = ? AND group_key IN ?", productCode, AuditStatusActive, groupKeys).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// insertAudit writes the audit and its outbox row while holding the product lock, refusing a
// second active audit across sibling groups.
func (l *AuditLedger) insertAudit(ctx context.Context, audit *AuditRecord) error {
	lockKey := strconv.Itoa(audit.ProductCode)
	return withGroupLock(l.DB, "audit-product", lockKey, func(conn *gorm.DB) error {
		return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			groups, err := siblingGroupKeys(ctx, tx, audit.GroupKey, audit.ProductCode)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				return utils.NewValidationError("product_code", "product %d is not counted in group %s", audit.ProductCode, audit.GroupKey)
			}
			exists, err := activeAuditExists(ctx, tx, audit.ProductCode, groups)
			if err != nil {
				return err
			}
			if exists {
				return utils.NewConflictError("product %d already has an active audit", audit.ProductCode)
			}
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
			return writeAuditOutbox(ctx, tx, audit, AuditOutboxActionCreate, audit.UserId)
		})
	})
}

func (l *AuditLedger) Submit(ctx context.Context, input *NewAudit) (*AuditRecord, error) {
	if !input.MovementKind.IsValid() {
		return nil, utils.NewValidationError("movement_kind", "must be REDUCE, INCLUDE or CORRECT")
	}
	if _, err := GetActiveCollaborator(ctx, l.DB, input.UserId); err != nil {
		return nil, err
	}
	flagged, magnitude := SignedDifference(input.MovementKind, input.Quantity)
	audit := AuditRecord{
		GroupKey:          strings.TrimSpace(input.GroupKey),
		ProductCode:       input.ProductCode,
		MovementKind:      input.MovementKind,
		MovementQty:       magnitude,
		FlaggedDifference: flagged,
		Note:              cleanText(input.Note),
		UserId:            input.UserId,
		Status:            AuditStatusActive,
	}
	if err := l.insertAudit(ctx, &audit); err != nil {
		return nil, err
	}
	return &audit, nil
}

// AutoResolve files a CORRECT audit by the system account when the product's final-round
// count matches its reference stock and no active audit exists. It never fails the caller.
func (l *AuditLedger) AutoResolve(ctx context.Context, groupKey string, productCode int) *AuditRecord {
	audit, err := l.autoResolve(ctx, groupKey, productCode)
	if err != nil {
		if utils.IsConflictError(err) {
			return nil
		}
		config.LogError(l.logger(), "AuditLedger", "AutoResolve", groupKey, productCode, err)
		return nil
	}
	return audit
}

func (l *AuditLedger) autoResolve(ctx context.Context, groupKey string, productCode int) (*AuditRecord, error) {
	if l.SystemUserId == 0 {
		return nil, errors.New("system audit account is not configured")
	}
	var keys []string
	if err := l.DB.WithContext(ctx).Model(&CountItem{}).
		Where("group_key = ? AND product_code = ?", groupKey, productCode).
		Distinct().
		Pluck("item_key", &keys).Error; err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	ev, err := l.Evaluator.Compute(ctx, productCode, FinalRoundNumber, keys)
	if err != nil {
		return nil, err
	}
	if ev.CountedLocations == 0 || ev.Diverges {
		return nil, nil
	}

	note := AutoResolveNote
	audit := AuditRecord{
		GroupKey:          groupKey,
		ProductCode:       productCode,
		MovementKind:      AuditMovementCorrect,
		MovementQty:       decimal.Zero,
		FlaggedDifference: decimal.Zero,
		Note:              &note,
		UserId:            l.SystemUserId,
		Status:            AuditStatusActive,
	}
	if err := l.insertAudit(ctx, &audit); err != nil {
		return nil, err
	}
	return &audit, nil
}

// AutoResolveGroup runs AutoResolve for every product of the group.
func (l *AuditLedger) AutoResolveGroup(ctx context.Context, groupKey string) {
	var codes []int
	if err := l.DB.WithContext(ctx).Model(&CountItem{}).
		Where("group_key = ?", groupKey).
		Distinct().
		Order("product_code ASC").
		Pluck("product_code", &codes).Error; err != nil {
		config.LogError(l.logger(), "AuditLedger", "AutoResolveGroup", "list products", groupKey, err)
		return
	}
	for _, code := range codes {
		l.AutoResolve(ctx, groupKey, code)
	}
}

// History returns the product's active audits, newest first.
func (l *AuditLedger) History(ctx context.Context, productCode int) ([]*AuditRecord, error) {
	var audits []*AuditRecord
	if err := l.DB.WithContext(ctx).
		Where("product_code = ? AND status = ?", productCode, AuditStatusActive).
		Order("created_at DESC, id DESC").
		Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}

// Void retires an active audit so the product can be audited again.
func (l *AuditLedger) Void(ctx context.Context, auditId int, userId int) (*AuditRecord, error) {
	if _, err := GetActiveCollaborator(ctx, l.DB, userId); err != nil {
		return nil, err
	}
	var audit AuditRecord
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", auditId).Take(&audit).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if audit.Status == AuditStatusVoid {
			return utils.NewConflictError("audit %d is already void", auditId)
		}
		now := time.Now().UTC()
		if err := tx.Model(&audit).Updates(map[string]interface{}{
			"status":    AuditStatusVoid,
			"voided_at": &now,
			"voided_by": &userId,
		}).Error; err != nil {
			return err
		}
		audit.Status = AuditStatusVoid
		audit.VoidedAt = &now
		audit.VoidedBy = &userId
		return writeAuditOutbox(ctx, tx, &audit, AuditOutboxActionVoid, userId)
	})
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

func (l *AuditLedger) logger() *logrus.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return config.GetLogger()
}
