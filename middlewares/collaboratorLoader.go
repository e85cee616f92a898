package middlewares

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type collaboratorReader struct {
	db *gorm.DB
}

func (r *collaboratorReader) getCollaborators(ctx context.Context, ids []int) []*dataloader.Result[*models.Collaborator] {
	var results []models.Collaborator
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Collaborator](len(ids), err)
	}
	return generateLoaderResults(results, ids,
		func(c models.Collaborator) int { return c.ID },
		func(id int) error { return fmt.Errorf("collaborator %d: %w", id, utils.ErrorRecordNotFound) },
	)
}

func GetCollaborator(ctx context.Context, id int) (*models.Collaborator, error) {
	loaders := For(ctx)
	return loaders.CollaboratorLoader.Load(ctx, id)()
}
