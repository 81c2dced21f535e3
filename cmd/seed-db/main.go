// Command seed-db populates an empty database with the starter product
// catalog and optionally pushes it into the Elasticsearch index. Seeding is
// idempotent: a database that already holds products is left untouched.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/openshelf/shop-api/internal/domain/product"
	"github.com/openshelf/shop-api/internal/repository"
	"github.com/openshelf/shop-api/internal/search"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"imageUrl"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		searchAddrs   string
		searchIndex   string
		forceReseed  bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.gz supported)")
	flag.StringVar(&searchAddrs, "search-addresses", "", "comma-separated Elasticsearch addresses (optional)")
	flag.StringVar(&searchIndex, "search-index", "products", "Elasticsearch index name")
	flag.BoolVar(&forceReseed, "force", false, "seed even when products already exist")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, searchAddrs, searchIndex, forceReseed); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, searchAddrs, searchIndex string, force bool) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewProductRepository(pool)

	if !force {
		existing, err := repo.List(ctx)
		if err != nil {
			return errors.Wrap(err, "check existing products")
		}
		if len(existing) > 0 {
			slog.Info("products already present, skipping seed", slog.Int("count", len(existing)))
			return nil
		}
	}

	items, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	var index search.Index = search.Disabled{}
	if searchAddrs != "" {
		es, err := search.NewElastic(search.ElasticConfig{
			Addresses: strings.Split(searchAddrs, ","),
			Index:     searchIndex,
		})
		if err != nil {
			return errors.Wrap(err, "create search client")
		}
		index = es
	}

	slog.Info("inserting products", slog.Int("count", len(items)))

	for _, item := range items {
		p := &product.Product{
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			Stock:       item.Stock,
			ImageURL:    item.ImageURL,
		}
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "insert product %q", item.Name)
		}

		// Indexing is best effort, same as the API's write path.
		if index.Enabled() {
			doc := search.Document{
				ID:          strconv.FormatInt(p.ID, 10),
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
				Stock:       p.Stock,
				Available:   p.Stock > 0,
			}
			if err := index.Index(ctx, doc); err != nil {
				slog.Warn("index product failed", slog.Int64("id", p.ID), slog.String("error", err.Error()))
			}
		}

		slog.Info("inserted product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

// readProducts loads the seed file, transparently decompressing gzip dumps.
func readProducts(path string) ([]productJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	var items []productJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return items, nil
}
