package middlewares

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the per-row lookups of one GraphQL request.
type Loaders struct {
	CollaboratorLoader *dataloader.Loader[int, *models.Collaborator]
	CountItemLoader    *dataloader.Loader[int, *models.CountItem]
	GroupItemsLoader   *dataloader.Loader[string, []*models.CountItem]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(conn *gorm.DB) *Loaders {
	collaboratorReader := &collaboratorReader{db: conn}
	countItemReader := &countItemReader{db: conn}

	return &Loaders{
		CollaboratorLoader: dataloader.NewBatchedLoader(collaboratorReader.getCollaborators, dataloader.WithWait[int, *models.Collaborator](time.Millisecond)),
		CountItemLoader:    dataloader.NewBatchedLoader(countItemReader.getCountItems, dataloader.WithWait[int, *models.CountItem](time.Millisecond)),
		GroupItemsLoader:   dataloader.NewBatchedLoader(countItemReader.getGroupItems, dataloader.WithWait[string, []*models.CountItem](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// WithLoaders attaches loaders outside of the gin chain, for jobs and tests.
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults lines rows up with the requested keys; keys without a row get missing(key).
func generateLoaderResults[K comparable, T any](rows []T, keys []K, keyOf func(T) K, missing func(K) error) []*dataloader.Result[*T] {
	resultMap := make(map[K]*T, len(rows))
	for i := range rows {
		resultMap[keyOf(rows[i])] = &rows[i]
	}
	loaderResults := make([]*dataloader.Result[*T], 0, len(keys))
	for _, key := range keys {
		if data, ok := resultMap[key]; ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: data})
			continue
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Error: missing(key)})
	}
	return loaderResults
}

// generateLoaderArrayResults groups rows under their reference key; a key without rows gets an empty slice.
func generateLoaderArrayResults[K comparable, T any](rows []T, keys []K, referenceOf func(T) K) []*dataloader.Result[[]*T] {
	resultMap := make(map[K][]*T)
	for i := range rows {
		ref := referenceOf(rows[i])
		resultMap[ref] = append(resultMap[ref], &rows[i])
	}
	loaderResults := make([]*dataloader.Result[[]*T], 0, len(keys))
	for _, key := range keys {
		data := resultMap[key]
		if data == nil {
			data = []*T{}
		}
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: data})
	}
	return loaderResults
}
