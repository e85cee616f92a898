package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
)

func TestGenerateLoaderResults(t *testing.T) {
	rows := []models.Collaborator{{ID: 7, Name: "b"}, {ID: 3, Name: "a"}}
	results := generateLoaderResults(rows, []int{3, 9, 7, 3},
		func(c models.Collaborator) int { return c.ID },
		func(id int) error { return utils.ErrorRecordNotFound },
	)
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Data.Name != "a" || results[2].Data.Name != "b" || results[3].Data.Name != "a" {
		t.Fatalf("results out of key order")
	}
	if !errors.Is(results[1].Error, utils.ErrorRecordNotFound) || results[1].Data != nil {
		t.Fatalf("missing key should carry an error: %+v", results[1])
	}
}

func TestGenerateLoaderArrayResults(t *testing.T) {
	rows := []models.CountItem{
		{ID: 1, GroupKey: "g1"},
		{ID: 2, GroupKey: "g2"},
		{ID: 3, GroupKey: "g1"},
	}
	results := generateLoaderArrayResults(rows, []string{"g1", "g3", "g2"}, func(it models.CountItem) string { return it.GroupKey })
	if len(results[0].Data) != 2 || results[0].Data[0].ID != 1 || results[0].Data[1].ID != 3 {
		t.Fatalf("g1: %+v", results[0].Data)
	}
	if results[1].Data == nil || len(results[1].Data) != 0 {
		t.Fatalf("g3 should be an empty slice: %+v", results[1].Data)
	}
	if len(results[2].Data) != 1 || results[2].Data[0].ID != 2 {
		t.Fatalf("g2: %+v", results[2].Data)
	}
}

func TestHandleError(t *testing.T) {
	boom := errors.New("boom")
	results := handleError[*models.CountItem](3, boom)
	for i, r := range results {
		if r.Error != boom {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
}

func TestCollaboratorLookupsAreBatched(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int
	batch := func(ctx context.Context, ids []int) []*dataloader.Result[*models.Collaborator] {
		mu.Lock()
		batches = append(batches, append([]int(nil), ids...))
		mu.Unlock()
		rows := make([]models.Collaborator, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, models.Collaborator{ID: id})
		}
		return generateLoaderResults(rows, ids,
			func(c models.Collaborator) int { return c.ID },
			func(id int) error { return utils.ErrorRecordNotFound },
		)
	}
	ctx := WithLoaders(context.Background(), &Loaders{
		CollaboratorLoader: dataloader.NewBatchedLoader(batch, dataloader.WithWait[int, *models.Collaborator](20*time.Millisecond)),
	})

	ids := []int{4, 5, 4, 6, 5}
	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c, err := GetCollaborator(ctx, id)
			if err == nil && c.ID != id {
				err = errors.New("wrong collaborator")
			}
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected one batch of three distinct ids; got %v", batches)
	}
}

func TestLoaderMiddlewareAttachesLoaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoaderMiddleware())
	r.GET("/", func(c *gin.Context) {
		if For(c.Request.Context()) == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d", w.Code)
	}
}
