package graph

// This file will be automatically regenerated based on the schema, any resolver implementations
// will be copied through when generating and any unknown code will be moved to the end.
// Code generated by github.com/99designs/gqlgen version v0.17.41

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/middlewares"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

// User is the resolver for the user field.
func (r *auditRecordResolver) User(ctx context.Context, obj *models.AuditRecord) (*models.Collaborator, error) {
	return middlewares.GetCollaborator(ctx, obj.UserId)
}

// SubmitAudit is the resolver for the submitAudit field.
func (r *mutationResolver) SubmitAudit(ctx context.Context, input models.NewAudit) (*models.AuditRecord, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	userId, err := requestUserId(ctx, input.UserId)
	if err != nil {
		return nil, err
	}
	input.UserId = userId

	ctx, span := r.startSpan(ctx, "SubmitAudit")
	defer span.End()
	span.SetAttributes(attribute.String("group_key", input.GroupKey), attribute.Int("product_code", input.ProductCode))

	return s.Ledger.Submit(ctx, &input)
}

// VoidAudit is the resolver for the voidAudit field.
func (r *mutationResolver) VoidAudit(ctx context.Context, id int, userID *int) (*models.AuditRecord, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	userId, err := requestUserId(ctx, utils.DereferencePtr(userID))
	if err != nil {
		return nil, err
	}
	return s.Ledger.Void(ctx, id, userId)
}

// AuditHistory is the resolver for the auditHistory field.
func (r *queryResolver) AuditHistory(ctx context.Context, productCode int) ([]*models.AuditRecord, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	return s.Ledger.History(ctx, productCode)
}

// PendingReview is the resolver for the pendingReview field.
func (r *queryResolver) PendingReview(ctx context.Context, date *string, floor *string) ([]*models.PendingReviewItem, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	day, err := parseDay(date, time.Now())
	if err != nil {
		return nil, err
	}
	return s.Ledger.PendingReview(ctx, day, strings.TrimSpace(utils.DereferencePtr(floor)))
}

// Item is the resolver for the item field.
func (r *roundHistoryEntryResolver) Item(ctx context.Context, obj *models.RoundHistoryEntry) (*models.CountItem, error) {
	return middlewares.GetCountItem(ctx, obj.ItemId)
}

// User is the resolver for the user field.
func (r *roundHistoryEntryResolver) User(ctx context.Context, obj *models.RoundHistoryEntry) (*models.Collaborator, error) {
	return middlewares.GetCollaborator(ctx, obj.UserId)
}

// AuditRecord returns AuditRecordResolver implementation.
func (r *Resolver) AuditRecord() AuditRecordResolver { return &auditRecordResolver{r} }

// RoundHistoryEntry returns RoundHistoryEntryResolver implementation.
func (r *Resolver) RoundHistoryEntry() RoundHistoryEntryResolver { return &roundHistoryEntryResolver{r} }

type auditRecordResolver struct{ *Resolver }
type roundHistoryEntryResolver struct{ *Resolver }
