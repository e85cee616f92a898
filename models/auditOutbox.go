package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuditOutboxRecord is written in the same transaction as the audit change it announces.
// The dispatcher publishes it after commit.
type AuditOutboxRecord struct {
	ID                int               `gorm:"primary_key;index:idx_audit_outbox_dispatch,priority:3" json:"id"`
	AuditId           int               `gorm:"not null;index" json:"audit_id"`
	GroupKey          string            `gorm:"size:64;not null" json:"group_key"`
	ProductCode       int               `gorm:"not null;index" json:"product_code"`
	Action            AuditOutboxAction `gorm:"size:1;not null" json:"action"`
	MovementKind      AuditMovementKind `gorm:"size:10;not null" json:"movement_kind"`
	MovementQty       decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"movement_qty"`
	FlaggedDifference decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"flagged_difference"`
	UserId            int               `gorm:"not null" json:"user_id"`
	OccurredAt        time.Time         `gorm:"not null" json:"occurred_at"`
	PublishStatus     string            `gorm:"size:20;index;not null;default:'PENDING';index:idx_audit_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt       *time.Time        `gorm:"index" json:"published_at"`
	PubSubMessageId   *string           `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts   int               `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt     *time.Time        `gorm:"index;index:idx_audit_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt          *time.Time        `gorm:"index" json:"locked_at"`
	LockedBy          *string           `gorm:"size:100" json:"locked_by"`
	LastPublishError  *string           `gorm:"type:text" json:"last_publish_error"`
	CorrelationId     string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToAuditMovementMessage(record AuditOutboxRecord) config.AuditMovementMessage {
	return config.AuditMovementMessage{
		ID:                record.ID,
		AuditId:           record.AuditId,
		GroupKey:          record.GroupKey,
		ProductCode:       record.ProductCode,
		MovementKind:      string(record.MovementKind),
		MovementQty:       record.MovementQty.String(),
		FlaggedDifference: record.FlaggedDifference.String(),
		UserId:            record.UserId,
		Action:            string(record.Action),
		OccurredAt:        record.OccurredAt,
		CorrelationId:     record.CorrelationId,
	}
}

func writeAuditOutbox(ctx context.Context, tx *gorm.DB, audit *AuditRecord, action AuditOutboxAction, userId int) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	record := AuditOutboxRecord{
		AuditId:           audit.ID,
		GroupKey:          audit.GroupKey,
		ProductCode:       audit.ProductCode,
		Action:            action,
		MovementKind:      audit.MovementKind,
		MovementQty:       audit.MovementQty,
		FlaggedDifference: audit.FlaggedDifference,
		UserId:            userId,
		OccurredAt:        time.Now().UTC(),
		PublishStatus:     OutboxPublishStatusPending,
		CorrelationId:     correlationId,
	}
	return tx.Create(&record).Error
}
