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
	"go.opentelemetry.io/otel/attribute"
)

// Item is the resolver for the item field.
func (r *countLogEntryResolver) Item(ctx context.Context, obj *models.CountLogEntry) (*models.CountItem, error) {
	return middlewares.GetCountItem(ctx, obj.ItemId)
}

// User is the resolver for the user field.
func (r *countLogEntryResolver) User(ctx context.Context, obj *models.CountLogEntry) (*models.Collaborator, error) {
	return middlewares.GetCollaborator(ctx, obj.UserId)
}

// Collaborator is the resolver for the collaborator field.
func (r *countRoundResolver) Collaborator(ctx context.Context, obj *models.CountRound) (*models.Collaborator, error) {
	return middlewares.GetCollaborator(ctx, obj.CollaboratorId)
}

// Items is the resolver for the items field.
func (r *countRoundResolver) Items(ctx context.Context, obj *models.CountRound) ([]*models.CountItem, error) {
	return roundItems(ctx, obj)
}

// CreateCountGroup is the resolver for the createCountGroup field.
func (r *mutationResolver) CreateCountGroup(ctx context.Context, input models.NewCountGroup) (*models.CountRound, error) {
	ctx, span := r.startSpan(ctx, "CreateCountGroup")
	defer span.End()
	span.SetAttributes(attribute.Int("round_number", input.RoundNumber), attribute.Int("items", len(input.Items)))

	return models.CreateCountGroup(ctx, &input)
}

// RecordCount is the resolver for the recordCount field.
func (r *mutationResolver) RecordCount(ctx context.Context, input models.NewCountLog) (*models.CountLogEntry, error) {
	userId, err := requestUserId(ctx, input.UserId)
	if err != nil {
		return nil, err
	}
	input.UserId = userId
	return models.RecordCount(ctx, &input)
}

// SetItemReviewFlag is the resolver for the setItemReviewFlag field.
func (r *mutationResolver) SetItemReviewFlag(ctx context.Context, itemKey string, itemID int, needsReview bool) (*models.CountItem, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	return s.Evaluator.SetItemReviewFlag(ctx, strings.TrimSpace(itemKey), needsReview, itemID)
}

// CloseRound is the resolver for the closeRound field.
func (r *mutationResolver) CloseRound(ctx context.Context, input models.CloseRoundInput) (*models.CountRound, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	ctx, span := r.startSpan(ctx, "CloseRound")
	defer span.End()
	span.SetAttributes(attribute.String("group_key", input.GroupKey), attribute.Int("round_number", input.RoundNumber))

	return s.Gate.CloseRound(ctx, &input)
}

// DeleteCountGroup is the resolver for the deleteCountGroup field.
func (r *mutationResolver) DeleteCountGroup(ctx context.Context, groupKey string) (int, error) {
	s, err := r.services()
	if err != nil {
		return 0, err
	}
	deleted, err := s.Gate.DeleteGroup(ctx, strings.TrimSpace(groupKey))
	return int(deleted), err
}

// CountRounds is the resolver for the countRounds field.
func (r *queryResolver) CountRounds(ctx context.Context, from *string, to *string) ([]*models.CountRound, error) {
	start, end, err := dayBounds(from, to, time.Now())
	if err != nil {
		return nil, err
	}
	return models.ListRounds(ctx, start, end)
}

// GroupRounds is the resolver for the groupRounds field.
func (r *queryResolver) GroupRounds(ctx context.Context, groupKey string) ([]*models.CountRound, error) {
	return models.ListGroupRounds(ctx, strings.TrimSpace(groupKey))
}

// CollaboratorRounds is the resolver for the collaboratorRounds field.
func (r *queryResolver) CollaboratorRounds(ctx context.Context, collaboratorID int) ([]*models.CountRound, error) {
	return models.ListRoundsByCollaborator(ctx, collaboratorID)
}

// RoundLogs is the resolver for the roundLogs field.
func (r *queryResolver) RoundLogs(ctx context.Context, roundID int) ([]*models.CountLogEntry, error) {
	return models.ListLogsByRound(ctx, roundID)
}

// AggregatedRoundLogs is the resolver for the aggregatedRoundLogs field.
func (r *queryResolver) AggregatedRoundLogs(ctx context.Context, roundID int) ([]*models.AggregatedLog, error) {
	return models.AggregatedLogsByRound(ctx, roundID)
}

// CountLogEntry returns CountLogEntryResolver implementation.
func (r *Resolver) CountLogEntry() CountLogEntryResolver { return &countLogEntryResolver{r} }

// CountRound returns CountRoundResolver implementation.
func (r *Resolver) CountRound() CountRoundResolver { return &countRoundResolver{r} }

type countLogEntryResolver struct{ *Resolver }
type countRoundResolver struct{ *Resolver }
