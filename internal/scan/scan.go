// Package scan reads the records of every media file in a library.
package scan

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/models"
	"github.com/starford/mediatag/internal/record"
	"github.com/starford/mediatag/internal/storage"
	"github.com/starford/mediatag/internal/xmp"
)

// DefaultWorkers bounds concurrent reads when Options.Workers is unset.
const DefaultWorkers = 4

// Options configures ReadDir.
type Options struct {
	// Dir limits the scan to a library subdirectory.
	Dir      string
	Workers  int
	Resolver dates.Resolver
	// Skip, when set, excludes files before they are read.
	Skip   func(models.MediaFile) bool
	Logger *slog.Logger
}

// Entry pairs a listed file with its record.
type Entry struct {
	File   models.MediaFile
	Record *record.Record
}

// Result holds the readable records sorted by path. Files holds every listed
// file, including skipped and failed ones.
type Result struct {
	Entries []Entry
	Files   []models.MediaFile
	Skipped int
	Failed  int
}

// Records returns the records of r in path order.
func (r Result) Records() []*record.Record {
	out := make([]*record.Record, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Record
	}
	return out
}

// ReadDir lists lib and reads each file's record through store, which must
// accept library-relative paths. Unreadable files are logged and left out;
// only a listing failure or cancellation is returned as an error.
func ReadDir(ctx context.Context, store xmp.Store, lib storage.Provider, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	files, err := lib.List(opts.Dir)
	if err != nil {
		return Result{}, err
	}
	res := Result{Files: files}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		if opts.Skip != nil && opts.Skip(f) {
			res.Skipped++
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := record.ReadWith(store, f.Path, opts.Resolver)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				logger.Debug("scan: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				return nil
			}
			res.Entries = append(res.Entries, Entry{File: f, Record: rec})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	slices.SortFunc(res.Entries, func(a, b Entry) int { return strings.Compare(a.File.Path, b.File.Path) })
	return res, nil
}
