package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

// itemUpserter is implemented by *postgres.CatalogRepository.
type itemUpserter interface {
	UpsertByName(ctx context.Context, item *catalog.Item) error
}

// openCatalog opens a catalog file, transparently decompressing *.gz files.
func openCatalog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, closerFunc(func() error {
		gzErr := gz.Close()
		if err := f.Close(); err != nil {
			return err
		}
		return gzErr
	})}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// readCatalog decodes a JSON array of items. Prices are decimal strings or
// numbers in the store currency ("129.50").
func readCatalog(r io.Reader) ([]catalog.Item, error) {
	var items []catalog.Item
	d := jx.Decode(r, 32*1024)
	err := d.Arr(func(d *jx.Decoder) error {
		var it catalog.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			return decodeItemField(d, key, &it)
		}); err != nil {
			return err
		}
		if err := it.Validate(); err != nil {
			return errors.Wrapf(err, "item %d (%q)", len(items), it.Name)
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return items, nil
}

func decodeItemField(d *jx.Decoder, key string, it *catalog.Item) error {
	var err error
	switch key {
	case "name":
		it.Name, err = d.Str()
	case "description":
		it.Description, err = d.Str()
	case "materials":
		it.Materials, err = d.Str()
	case "category":
		var c string
		c, err = d.Str()
		it.Category = catalog.Category(c)
	case "price":
		var raw string
		switch d.Next() {
		case jx.Number:
			var n jx.Num
			n, err = d.Num()
			raw = n.String()
		default:
			raw, err = d.Str()
		}
		if err != nil {
			return err
		}
		it.Price, err = money.Parse(raw)
	case "stock_quantity":
		it.StockQuantity, err = d.Int()
	case "image_url":
		it.ImageURL, err = d.Str()
	case "is_featured":
		it.IsFeatured, err = d.Bool()
	default:
		err = d.Skip()
	}
	return err
}

// upsertItems writes items with bounded parallelism. Items are keyed by name
// so reseeding updates prices and stock in place.
func upsertItems(ctx context.Context, repo itemUpserter, items []catalog.Item, workers int) error {
	slog.Info("upserting catalog", slog.Int("count", len(items)), slog.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		it := &items[i]
		g.Go(func() error {
			if err := repo.UpsertByName(ctx, it); err != nil {
				return errors.Wrapf(err, "upsert item %q", it.Name)
			}
			slog.Info("upserted item",
				slog.Int64("id", it.ID),
				slog.String("name", it.Name),
				slog.String("price", it.Price.String()),
			)
			return nil
		})
	}
	return g.Wait()
}
