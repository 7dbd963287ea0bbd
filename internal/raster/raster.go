// Package raster defines the page-rasterization collaborator contract: one
// source document in, an ordered, non-empty list of page images out.
package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kaura24/regaudit/internal/store"
	"github.com/kaura24/regaudit/internal/types"
)

// PageImage is one rendered page. Index preserves document order.
type PageImage struct {
	Data  []byte
	MIME  string
	Index int
}

// Rasterizer converts a source reference into ordered page images. The
// result must be non-empty and order-preserving.
type Rasterizer interface {
	Rasterize(ctx context.Context, source types.SourceRef) ([]PageImage, error)
}

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// loadConcurrency bounds parallel reads within one rasterization pass.
const loadConcurrency = 4

// DirRasterizer serves pre-rendered page images from a local directory,
// ordered by filename. Useful for operator CLI runs and tests, and as the
// reference implementation of the contract.
type DirRasterizer struct{}

// Rasterize reads every recognized image under source.URI in lexical
// filename order.
func (DirRasterizer) Rasterize(ctx context.Context, source types.SourceRef) ([]PageImage, error) {
	entries, err := os.ReadDir(source.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to read page directory %s: %w", source.URI, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := mimeByExt[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no page images found in %s", source.URI)
	}
	sort.Strings(names)

	pages := make([]PageImage, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(source.URI, name))
			if err != nil {
				return fmt.Errorf("failed to read page %s: %w", name, err)
			}
			pages[i] = PageImage{
				Data:  data,
				MIME:  mimeByExt[strings.ToLower(filepath.Ext(name))],
				Index: i,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// StoreRasterizer serves pre-rendered page images from the durable object
// store, keyed under source.URI as a prefix. Pages follow key order.
type StoreRasterizer struct {
	Store store.Store
}

// Rasterize lists and fetches every image object under the prefix.
func (r StoreRasterizer) Rasterize(ctx context.Context, source types.SourceRef) ([]PageImage, error) {
	keys, err := r.Store.List(ctx, source.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages under %s: %w", source.URI, err)
	}

	var imageKeys []string
	for _, key := range keys {
		if _, ok := mimeByExt[strings.ToLower(filepath.Ext(key))]; ok {
			imageKeys = append(imageKeys, key)
		}
	}
	if len(imageKeys) == 0 {
		return nil, fmt.Errorf("no page images found under %s", source.URI)
	}
	sort.Strings(imageKeys)

	pages := make([]PageImage, len(imageKeys))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, key := range imageKeys {
		g.Go(func() error {
			data, err := r.Store.Get(gCtx, key)
			if err != nil {
				return fmt.Errorf("failed to fetch page %s: %w", key, err)
			}
			pages[i] = PageImage{
				Data:  data,
				MIME:  mimeByExt[strings.ToLower(filepath.Ext(key))],
				Index: i,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}
