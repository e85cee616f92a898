package directives

import (
	"context"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// activeCollaborator is swapped in tests.
var activeCollaborator = func(ctx context.Context, id int) (*models.Collaborator, error) {
	return models.GetActiveCollaborator(ctx, config.GetDB(), id)
}

// Auth admits the caller when the token names an active collaborator. Anonymous callers
// pass only while AUTH_REQUIRED is off; their mutations must then name the user in the input.
func Auth(ctx context.Context, obj interface{}, next graphql.Resolver) (interface{}, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		if config.AuthRequired() {
			return nil, &gqlerror.Error{
				Message:    "Access Denied",
				Extensions: map[string]interface{}{"code": "UNAUTHENTICATED"},
			}
		}
		return next(ctx)
	}

	collaborator, err := activeCollaborator(ctx, userId)
	if err != nil {
		if utils.IsValidationError(err) {
			return nil, &gqlerror.Error{
				Message:    "User is disabled or unknown",
				Extensions: map[string]interface{}{"code": "FORBIDDEN"},
			}
		}
		return nil, err
	}
	ctx = utils.SetUserNameInContext(ctx, collaborator.Name)
	return next(ctx)
}
