package catalog

import (
	"context"
	"log/slog"

	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/models"
	"github.com/starford/mediatag/internal/record"
	"github.com/starford/mediatag/internal/scan"
	"github.com/starford/mediatag/internal/storage"
	"github.com/starford/mediatag/internal/xmp"
)

// Source is where the catalog reads records from. Store must accept
// library-relative paths.
type Source struct {
	Store    xmp.Store
	Lib      storage.Provider
	Resolver dates.Resolver
	Workers  int
}

// EventCallback is called after a catalog change driven by the file system.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// SyncStats summarises one Sync pass.
type SyncStats struct {
	Indexed   int
	Unchanged int
	Removed   int
	Failed    int
}

// Sync walks the library and brings the catalog up to date:
//   - new/changed files (by fingerprint) are read and upserted
//   - files that vanished or no longer carry metadata are deleted
func Sync(ctx context.Context, db *DB, src Source, logger *slog.Logger, cb EventCallback) (SyncStats, error) {
	var st SyncStats
	known, err := db.Fingerprints()
	if err != nil {
		return st, err
	}

	res, err := scan.ReadDir(ctx, src.Store, src.Lib, scan.Options{
		Workers:  src.Workers,
		Resolver: src.Resolver,
		Logger:   logger,
		Skip: func(f models.MediaFile) bool {
			fp, ok := known[f.Path]
			return ok && fp == f.Fingerprint
		},
	})
	if err != nil {
		return st, err
	}
	st.Unchanged, st.Failed = res.Skipped, res.Failed

	keep := make(map[string]struct{}, len(res.Files))
	for _, f := range res.Files {
		if fp, ok := known[f.Path]; ok && fp == f.Fingerprint {
			keep[f.Path] = struct{}{}
		}
	}
	for _, e := range res.Entries {
		keep[e.File.Path] = struct{}{}
		_, existed := known[e.File.Path]
		if err := db.Upsert(FromRecord(e.Record, e.File.Fingerprint)); err != nil {
			logger.Warn("sync: index failed", slog.String("path", e.File.Path), slog.String("error", err.Error()))
			continue
		}
		st.Indexed++
		logger.Debug("sync: indexed", slog.String("path", e.File.Path))
		if cb != nil {
			cb(kindFor(existed), e.File.Path)
		}
	}

	// Remove stale entries.
	for p := range known {
		if _, ok := keep[p]; ok {
			continue
		}
		if err := db.Delete(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		st.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
		if cb != nil {
			cb("deleted", p)
		}
	}
	return st, nil
}

// Refresh re-reads one library file and updates its row. A file that is
// gone or has no readable metadata is removed from the catalog. It returns
// the change kind, or "" when nothing changed.
func Refresh(db *DB, src Source, rel string) (string, error) {
	prev, _ := db.Get(rel)
	f, err := src.Lib.Stat(rel)
	if err != nil {
		return removeIfKnown(db, prev, rel)
	}
	if prev != nil && prev.Fingerprint == f.Fingerprint {
		return "", nil
	}
	rec, err := record.ReadWith(src.Store, rel, src.Resolver)
	if err != nil {
		return removeIfKnown(db, prev, rel)
	}
	if err := db.Upsert(FromRecord(rec, f.Fingerprint)); err != nil {
		return "", err
	}
	return kindFor(prev != nil), nil
}

func removeIfKnown(db *DB, prev *Row, rel string) (string, error) {
	if prev == nil {
		return "", nil
	}
	if err := db.Delete(rel); err != nil {
		return "", err
	}
	return "deleted", nil
}

func kindFor(existed bool) string {
	if existed {
		return "updated"
	}
	return "created"
}
