// Package library coordinates the metadata store, the catalog and the tag
// index behind the HTTP, MCP and CLI surfaces.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mediatag/internal/apperr"
	"github.com/starford/mediatag/internal/catalog"
	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/metrics"
	"github.com/starford/mediatag/internal/models"
	"github.com/starford/mediatag/internal/record"
	"github.com/starford/mediatag/internal/tagindex"
)

// MaxTagLength bounds a single tag.
const MaxTagLength = 256

// Detail is the full representation of one record.
type Detail struct {
	Path        string     `json:"path"`
	Date        *time.Time `json:"date"`
	Tags        []string   `json:"tags"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// Change describes a record mutation. Tags, when set, replaces every tag
// before Add and Remove are applied. An empty Date leaves the date alone.
type Change struct {
	Tags   *[]string
	Add    []string
	Remove []string
	Date   string
}

// Notifier is told about record changes ("created", "updated", "deleted").
type Notifier func(kind, path string)

// Service coordinates store, catalog and tag index operations.
type Service struct {
	src    catalog.Source
	db     *catalog.DB
	logger *slog.Logger

	mu       sync.Mutex // serialises mutations
	index    atomic.Pointer[tagindex.Index]
	notifier atomic.Pointer[Notifier]
}

// NewService creates a library service. The tag index starts empty; call
// Rescan or RebuildIndex to populate it.
func NewService(db *catalog.DB, src catalog.Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{src: src, db: db, logger: logger}
	s.index.Store(tagindex.FromTags(nil))
	return s
}

// SetNotifier installs the change listener.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier.Store(&n)
}

func (s *Service) notify(kind, path string) {
	if n := s.notifier.Load(); n != nil && *n != nil {
		(*n)(kind, path)
	}
}

// Source exposes the store and library the service reads from.
func (s *Service) Source() catalog.Source { return s.src }

// Index returns the current tag index snapshot.
func (s *Service) Index() *tagindex.Index {
	return s.index.Load()
}

// RebuildIndex builds a fresh tag index from the catalog.
func (s *Service) RebuildIndex() error {
	rows, err := s.db.Records()
	if err != nil {
		return err
	}
	recs := make([]*record.Record, len(rows))
	for i, r := range rows {
		recs[i] = r.Record()
	}
	idx := tagindex.Build(recs)
	s.index.Store(idx)
	metrics.TagIndexSize.Set(float64(idx.Len()))
	return nil
}

// Rescan synchronises the catalog with the library and rebuilds the index.
func (s *Service) Rescan(ctx context.Context) (catalog.SyncStats, error) {
	start := time.Now()
	st, err := catalog.Sync(ctx, s.db, s.src, s.logger, s.notify)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return st, err
	}
	metrics.ScanFilesTotal.WithLabelValues("indexed").Add(float64(st.Indexed))
	metrics.ScanFilesTotal.WithLabelValues("unchanged").Add(float64(st.Unchanged))
	metrics.ScanFilesTotal.WithLabelValues("removed").Add(float64(st.Removed))
	metrics.ScanFilesTotal.WithLabelValues("failed").Add(float64(st.Failed))
	s.logger.Info("library: scan complete",
		slog.Int("indexed", st.Indexed),
		slog.Int("unchanged", st.Unchanged),
		slog.Int("removed", st.Removed),
		slog.Int("failed", st.Failed),
		slog.Duration("took", time.Since(start)))
	return st, s.RebuildIndex()
}

// Refresh re-reads one file into the catalog and rebuilds the index. It
// returns the change kind, or "" when the file was unchanged.
func (s *Service) Refresh(path string) (string, error) {
	kind, err := catalog.Refresh(s.db, s.src, path)
	if err != nil || kind == "" {
		return kind, err
	}
	s.changed(kind, path)
	return kind, nil
}

// Watch keeps the catalog and index current with file-system changes until
// ctx is cancelled.
func (s *Service) Watch(ctx context.Context) error {
	return catalog.Watch(ctx, s.db, s.src, s.logger, s.changed)
}

func (s *Service) changed(kind, path string) {
	if err := s.RebuildIndex(); err != nil {
		s.logger.Warn("library: rebuild index failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.notify(kind, path)
}

// GetRecord reads a record straight from the store.
func (s *Service) GetRecord(_ context.Context, path string) (*Detail, error) {
	f, err := s.stat(path)
	if err != nil {
		return nil, err
	}
	rec, err := record.ReadWith(s.src.Store, path, s.src.Resolver)
	metrics.RecordReadsTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}
	return detail(rec, f.Fingerprint), nil
}

// ListRecords returns a page of cataloged records, optionally filtered by tag.
func (s *Service) ListRecords(_ context.Context, limit, offset int, tag string) ([]Detail, int, error) {
	rows, total, err := s.db.List(limit, offset, tag)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Detail, len(rows))
	for i, r := range rows {
		out[i] = Detail{Path: r.Path, Date: r.Date, Tags: nonNilSlice(r.Tags), Fingerprint: r.Fingerprint}
	}
	return out, total, nil
}

// SearchRecords searches cataloged paths and tags.
func (s *Service) SearchRecords(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	return s.db.Search(query, limit)
}

// SearchTags queries the current tag index.
func (s *Service) SearchTags(_ context.Context, query string) []string {
	metrics.TagSearchesTotal.Inc()
	return s.Index().Search(query)
}

// AddTags appends tags to a record.
func (s *Service) AddTags(ctx context.Context, path string, tags ...string) (*Detail, error) {
	return s.Apply(ctx, path, Change{Add: tags}, "")
}

// RemoveTags removes the first occurrence of each tag. A missing tag fails
// the whole change with apperr.ErrNotFound and nothing is written.
func (s *Service) RemoveTags(ctx context.Context, path string, tags ...string) (*Detail, error) {
	return s.Apply(ctx, path, Change{Remove: tags}, "")
}

// SetTags replaces every tag of a record.
func (s *Service) SetTags(ctx context.Context, path string, tags []string) (*Detail, error) {
	return s.Apply(ctx, path, Change{Tags: &tags}, "")
}

// SetDate parses raw and writes it to every date field of a record.
func (s *Service) SetDate(ctx context.Context, path, raw string) (*Detail, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("library: date: %w", apperr.ErrInvalid)
	}
	return s.Apply(ctx, path, Change{Date: raw}, "")
}

// Apply reads the record, applies ch, writes it back and updates the
// catalog and the tag index. ifMatch, when set, must equal the file's
// current fingerprint.
func (s *Service) Apply(_ context.Context, path string, ch Change, ifMatch string) (*Detail, error) {
	if err := validateChange(ch); err != nil {
		return nil, err
	}
	var date *time.Time
	if ch.Date != "" {
		t, err := dates.Parse(ch.Date)
		if err != nil {
			return nil, err
		}
		date = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.stat(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != f.Fingerprint {
		return nil, fmt.Errorf("library: %s: %w", path, apperr.ErrConflict)
	}

	rec, err := record.ReadWith(s.src.Store, path, s.src.Resolver)
	metrics.RecordReadsTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		if !errors.Is(err, apperr.ErrNoMetadata) {
			return nil, err
		}
		// First write to a file without metadata.
		rec = record.New(path)
	}

	if ch.Tags != nil {
		rec.SetTags(*ch.Tags)
	}
	for _, tag := range ch.Add {
		rec.AddTag(tag)
	}
	for _, tag := range ch.Remove {
		if err := rec.RemoveTag(tag); err != nil {
			return nil, err
		}
	}
	if date != nil {
		rec.SetDate(date)
	}

	err = rec.WriteAll(s.src.Store)
	metrics.RecordWritesTotal.WithLabelValues("all", metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}

	f, err = s.src.Lib.Stat(path)
	if err != nil {
		return nil, err
	}
	_, getErr := s.db.Get(path)
	if err := s.db.Upsert(catalog.FromRecord(rec, f.Fingerprint)); err != nil {
		return nil, err
	}
	if err := s.RebuildIndex(); err != nil {
		return nil, err
	}

	kind := "updated"
	if errors.Is(getErr, apperr.ErrNotFound) {
		kind = "created"
	}
	s.logger.Debug("library: record written", slog.String("path", path), slog.String("op", kind))
	s.notify(kind, path)
	return detail(rec, f.Fingerprint), nil
}

func validateChange(ch Change) error {
	tagRules := validation.Each(validation.Required, validation.Length(1, MaxTagLength))
	var replace []string
	if ch.Tags != nil {
		replace = *ch.Tags
	}
	err := validation.Errors{
		"tags":   validation.Validate(replace, tagRules),
		"add":    validation.Validate(ch.Add, tagRules),
		"remove": validation.Validate(ch.Remove, tagRules),
	}.Filter()
	if err != nil {
		return fmt.Errorf("library: %w: %w", apperr.ErrInvalid, err)
	}
	if ch.Tags == nil && len(ch.Add) == 0 && len(ch.Remove) == 0 && ch.Date == "" {
		return fmt.Errorf("library: empty change: %w", apperr.ErrInvalid)
	}
	return nil
}

func (s *Service) stat(path string) (models.MediaFile, error) {
	if path == "" || !s.src.Lib.Accepts(path) {
		return models.MediaFile{}, fmt.Errorf("library: %q is not a media file: %w", path, apperr.ErrInvalid)
	}
	f, err := s.src.Lib.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, fmt.Errorf("library: %s: %w", path, apperr.ErrNotFound)
	case err != nil:
		return f, fmt.Errorf("library: %s: %w: %w", path, apperr.ErrInvalid, err)
	}
	return f, nil
}

func detail(rec *record.Record, fingerprint string) *Detail {
	return &Detail{Path: rec.Path, Date: rec.Date, Tags: nonNilSlice(rec.Tags()), Fingerprint: fingerprint}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
