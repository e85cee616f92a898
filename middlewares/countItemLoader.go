package middlewares

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type countItemReader struct {
	db *gorm.DB
}

func (r *countItemReader) getCountItems(ctx context.Context, ids []int) []*dataloader.Result[*models.CountItem] {
	var results []models.CountItem
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.CountItem](len(ids), err)
	}
	return generateLoaderResults(results, ids,
		func(it models.CountItem) int { return it.ID },
		func(id int) error { return fmt.Errorf("count item %d: %w", id, utils.ErrorRecordNotFound) },
	)
}

// getGroupItems loads the shared items of several count groups in creation order.
func (r *countItemReader) getGroupItems(ctx context.Context, groupKeys []string) []*dataloader.Result[[]*models.CountItem] {
	var results []models.CountItem
	err := r.db.WithContext(ctx).Where("group_key IN ?", groupKeys).Order("id ASC").Find(&results).Error
	if err != nil {
		return handleError[[]*models.CountItem](len(groupKeys), err)
	}
	return generateLoaderArrayResults(results, groupKeys, func(it models.CountItem) string { return it.GroupKey })
}

func GetCountItem(ctx context.Context, id int) (*models.CountItem, error) {
	loaders := For(ctx)
	return loaders.CountItemLoader.Load(ctx, id)()
}

func GetGroupItems(ctx context.Context, groupKey string) ([]*models.CountItem, error) {
	loaders := For(ctx)
	return loaders.GroupItemsLoader.Load(ctx, groupKey)()
}
