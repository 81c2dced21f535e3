package product

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openshelf/shop-api/internal/search"
	"github.com/openshelf/shop-api/pkg/cache"
)

// cacheKeyAll is the cache entry holding the full product listing. Per-ID
// entries use the decimal product ID as their key.
const cacheKeyAll = "all"

// reindexWorkers bounds the parallelism of ReindexAll.
const reindexWorkers = 4

// Service provides catalog operations with read-through caching and
// best-effort search index synchronization. Index failures are logged and
// swallowed; they never surface to the caller.
type Service struct {
	repo  Repository
	index search.Index
	lg    *zap.Logger

	all  *cache.Store[[]Product]
	byID *cache.Store[*Product]
}

// NewService creates a product Service. The index may be search.Disabled;
// every index interaction degrades gracefully.
func NewService(repo Repository, index search.Index, cacheSize int, cacheTTL time.Duration, lg *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		index: index,
		lg:    lg,
		all:   cache.New[[]Product](1, cacheTTL),
		byID:  cache.New[*Product](cacheSize, cacheTTL),
	}
}

// List returns every product, served from the "all" cache entry when warm.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	if products, ok := s.all.Get(cacheKeyAll); ok {
		return products, nil
	}

	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	s.all.Put(cacheKeyAll, products)
	return products, nil
}

// GetByID returns a single product, served from the per-ID cache when warm.
func (s *Service) GetByID(ctx context.Context, id int64) (*Product, error) {
	key := cacheKey(id)
	if p, ok := s.byID.Get(key); ok {
		return p, nil
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.byID.Put(key, p)
	return p, nil
}

// SearchByName matches q case-insensitively against product names and
// descriptions. When the search index is reachable it serves the query and
// each hit is resolved back to the authoritative store; otherwise the store
// is queried directly. Callers cannot observe which path ran.
func (s *Service) SearchByName(ctx context.Context, q string) ([]Product, error) {
	if !s.index.Enabled() {
		return s.repo.SearchByName(ctx, q)
	}

	docs, err := s.index.Search(ctx, q)
	if err != nil {
		s.lg.Warn("search index query failed, falling back to store",
			zap.String("query", q), zap.Error(err))
		return s.repo.SearchByName(ctx, q)
	}

	products := make([]Product, 0, len(docs))
	for _, doc := range docs {
		id, err := strconv.ParseInt(doc.ID, 10, 64)
		if err != nil {
			s.lg.Warn("search index returned malformed document id",
				zap.String("id", doc.ID))
			continue
		}
		p, err := s.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Stale index entry; the document outlived its product.
				continue
			}
			return nil, errors.Wrapf(err, "resolve search hit %d", id)
		}
		products = append(products, *p)
	}
	return products, nil
}

// Create validates and persists a new product, then indexes it best-effort.
func (s *Service) Create(ctx context.Context, data Data) (*Product, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	p := &Product{
		Name:        data.Name,
		Description: data.Description,
		Price:       data.Price,
		Stock:       data.Stock,
		ImageURL:    data.ImageURL,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}

	s.all.Invalidate(cacheKeyAll)
	s.indexProduct(ctx, p)
	return p, nil
}

// Update replaces every caller-settable field of the product, refreshes its
// cache entry, and re-indexes it best-effort.
func (s *Service) Update(ctx context.Context, id int64, data Data) (*Product, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Name = data.Name
	p.Description = data.Description
	p.Price = data.Price
	p.Stock = data.Stock
	p.ImageURL = data.ImageURL

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.byID.Put(cacheKey(id), p)
	s.all.Invalidate(cacheKeyAll)
	s.indexProduct(ctx, p)
	return p, nil
}

// Delete removes the product from the store and, best-effort, from the index.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.byID.Invalidate(cacheKey(id))
	s.all.Invalidate(cacheKeyAll)

	if err := s.index.Delete(ctx, strconv.FormatInt(id, 10)); err != nil {
		s.lg.Warn("failed to delete product from search index",
			zap.Int64("product_id", id), zap.Error(err))
	}
	return nil
}

// AdjustStock adds delta to the product's stock. The floor against negative
// stock is order placement's concern, not this method's.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) (*Product, error) {
	p, err := s.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, err
	}

	s.byID.Put(cacheKey(id), p)
	s.all.Invalidate(cacheKeyAll)
	s.indexProduct(ctx, p)
	return p, nil
}

// Invalidate drops the cache entries for the given product IDs along with
// the full listing. The order service calls this after stock moved under an
// order transaction.
func (s *Service) Invalidate(ids ...int64) {
	for _, id := range ids {
		s.byID.Invalidate(cacheKey(id))
	}
	s.all.Invalidate(cacheKeyAll)
}

// ReindexAll re-pushes every stored product into the search index and
// returns the number of products successfully indexed. Per-item failures
// are logged and skipped; only store errors or cancellation abort the batch.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list products for reindex")
	}

	if !s.index.Enabled() {
		s.lg.Info("search index not configured, skipping reindex")
		return 0, nil
	}

	var indexed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexWorkers)
	for i := range products {
		p := products[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.index.Index(ctx, documentFor(&p)); err != nil {
				s.lg.Error("failed to index product",
					zap.Int64("product_id", p.ID), zap.Error(err))
				return nil
			}
			indexed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(indexed.Load()), errors.Wrap(err, "reindex products")
	}

	s.lg.Info("reindex completed",
		zap.Int("total", len(products)),
		zap.Int64("indexed", indexed.Load()))
	return int(indexed.Load()), nil
}

// indexProduct pushes one product into the search index, logging failures
// without propagating them.
func (s *Service) indexProduct(ctx context.Context, p *Product) {
	if !s.index.Enabled() {
		return
	}
	if err := s.index.Index(ctx, documentFor(p)); err != nil {
		s.lg.Error("failed to index product",
			zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

func documentFor(p *Product) search.Document {
	return search.Document{
		ID:          strconv.FormatInt(p.ID, 10),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Available:   p.Stock > 0,
	}
}

func cacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
