package graph

// This file will be automatically regenerated based on the schema, any resolver implementations
// will be copied through when generating and any unknown code will be moved to the end.
// Code generated by github.com/99designs/gqlgen version v0.17.41

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
)

// CreateCollaborator is the resolver for the createCollaborator field.
func (r *mutationResolver) CreateCollaborator(ctx context.Context, input models.NewCollaborator) (*models.Collaborator, error) {
	return models.CreateCollaborator(ctx, &input)
}

// ToggleActiveCollaborator is the resolver for the toggleActiveCollaborator field.
func (r *mutationResolver) ToggleActiveCollaborator(ctx context.Context, id int, isActive bool) (*models.Collaborator, error) {
	return models.ToggleActiveCollaborator(ctx, id, isActive)
}

// LiveStock is the resolver for the liveStock field.
func (r *queryResolver) LiveStock(ctx context.Context, productCode int) (*models.LiveStock, error) {
	s, err := r.services()
	if err != nil {
		return nil, err
	}
	if productCode <= 0 {
		return nil, utils.NewValidationError("product_code", "must be a positive integer")
	}
	company, _ := utils.GetCompanyCodeFromContext(ctx)
	if strings.TrimSpace(company) == "" {
		company = config.CompanyCode()
	}

	oracleCtx, cancel := context.WithTimeout(ctx, config.StockOracleTimeout())
	defer cancel()
	stock, found, err := s.Oracle.FetchLiveStock(oracleCtx, productCode, company)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &models.LiveStock{ProductCode: productCode, CompanyCode: company, Stock: stock}, nil
}

// Mutation returns MutationResolver implementation.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

type mutationResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
