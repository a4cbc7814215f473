package middlewares

import (
	"context"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/appctx"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
)

// batchSource is implemented by stores that can fetch many reference rows in one query.
type batchSource interface {
	OutturnsByIds(ctx context.Context, ids []int) (map[int]inventory.Outturn, error)
	PackagingsByIds(ctx context.Context, ids []int) (map[int]inventory.Packaging, error)
}

// Loaders batch the per-leg reference lookups a balance or bifurcation makes within one request.
type Loaders struct {
	outturnLoader   *dataloader.Loader[int, *inventory.Outturn]
	packagingLoader *dataloader.Loader[int, *inventory.Packaging]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(store inventory.Store) *Loaders {
	outturnReader := &outturnReader{store: store}
	packagingReader := &packagingReader{store: store}

	return &Loaders{
		outturnLoader:   dataloader.NewBatchedLoader(outturnReader.getOutturns, dataloader.WithWait[int, *inventory.Outturn](time.Millisecond)),
		packagingLoader: dataloader.NewBatchedLoader(packagingReader.getPackagings, dataloader.WithWait[int, *inventory.Packaging](time.Millisecond)),
	}
}

// LoaderMiddleware attaches fresh loaders over store to every request.
func LoaderMiddleware(store inventory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(store)
		ctx := appctx.Set(c.Request.Context(), appctx.ContextKeyLoaders, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(appctx.ContextKeyLoaders).(*Loaders)
	return loaders
}

// StoreFor routes id lookups of base through the request's loaders, when there are any.
func StoreFor(ctx context.Context, base inventory.Store) inventory.Store {
	loaders := For(ctx)
	if loaders == nil {
		return base
	}
	return &loaderStore{Store: base, loaders: loaders}
}

type loaderStore struct {
	inventory.Store
	loaders *Loaders
}

func (s *loaderStore) OutturnById(ctx context.Context, id int) (*inventory.Outturn, error) {
	return s.loaders.outturnLoader.Load(ctx, id)()
}

func (s *loaderStore) PackagingById(ctx context.Context, id int) (*inventory.Packaging, error) {
	return s.loaders.packagingLoader.Load(ctx, id)()
}

type outturnReader struct {
	store inventory.Store
}

func (r *outturnReader) getOutturns(ctx context.Context, ids []int) []*dataloader.Result[*inventory.Outturn] {
	if batch, ok := r.store.(batchSource); ok {
		found, err := batch.OutturnsByIds(ctx, ids)
		if err != nil {
			return handleError[*inventory.Outturn](len(ids), err)
		}
		return generateLoaderResults(found, ids, "outturn")
	}
	return loadOneByOne(ctx, ids, r.store.OutturnById)
}

type packagingReader struct {
	store inventory.Store
}

func (r *packagingReader) getPackagings(ctx context.Context, ids []int) []*dataloader.Result[*inventory.Packaging] {
	if batch, ok := r.store.(batchSource); ok {
		found, err := batch.PackagingsByIds(ctx, ids)
		if err != nil {
			return handleError[*inventory.Packaging](len(ids), err)
		}
		return generateLoaderResults(found, ids, "packaging")
	}
	return loadOneByOne(ctx, ids, r.store.PackagingById)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults keeps the order of ids; an id with no row gets a NotFoundError.
func generateLoaderResults[T any](found map[int]T, ids []int, resource string) []*dataloader.Result[*T] {
	results := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		v, ok := found[id]
		if !ok {
			results = append(results, &dataloader.Result[*T]{Error: &inventory.NotFoundError{Resource: resource, Key: strconv.Itoa(id)}})
			continue
		}
		results = append(results, &dataloader.Result[*T]{Data: &v})
	}
	return results
}

func loadOneByOne[T any](ctx context.Context, ids []int, get func(context.Context, int) (*T, error)) []*dataloader.Result[*T] {
	results := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		v, err := get(ctx, id)
		results = append(results, &dataloader.Result[*T]{Data: v, Error: err})
	}
	return results
}
