// Package record holds the in-memory view of one media file's descriptive
// metadata and moves it to and from an xmp.Store.
package record

import (
	"fmt"
	"slices"
	"time"

	"github.com/starford/mediatag/internal/apperr"
	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/xmp"
)

// dateField is one of the redundant creation-date properties, listed in
// resolution priority order.
type dateField struct {
	schema string
	name   string
}

var dateFields = []dateField{
	{xmp.SchemaXMP, xmp.PropCreateDate},
	{xmp.SchemaExif, xmp.PropDateTimeOriginal},
	{xmp.SchemaDC, xmp.PropCreated},
}

// Record is a file's resolved creation date and its tags. A Record is owned
// by whoever holds it; use Clone before sharing.
type Record struct {
	Path string
	// Date is nil when no date field could be resolved.
	Date *time.Time
	tags []string
}

// New returns a record for path with the given tags and no date.
func New(path string, tags ...string) *Record {
	return &Record{Path: path, tags: slices.Clone(tags)}
}

// Read opens path read-only and resolves its record with the default
// date precedence.
func Read(store xmp.Store, path string) (*Record, error) {
	return ReadWith(store, path, dates.Resolver{Precedence: dates.DefaultPrecedence})
}

// ReadWith is Read with an explicit date resolver. Missing fields are not
// errors; only a failure to open the container is.
func ReadWith(store xmp.Store, path string, resolver dates.Resolver) (*Record, error) {
	h, err := store.Open(path, xmp.ModeReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Close(xmp.CloseDiscard) }()

	cands := make([]dates.Candidate, len(dateFields))
	for i, f := range dateFields {
		raw, ok := h.Property(f.schema, f.name)
		cands[i] = dates.Candidate{Field: f.name, Raw: raw, Present: ok}
	}

	rec := &Record{Path: path}
	if d, ok := resolver.Resolve(cands).Value(); ok {
		rec.Date = &d
	}
	for tag := range xmp.ArrayItems(h, xmp.SchemaDC, xmp.PropSubject) {
		rec.tags = append(rec.tags, tag)
	}
	return rec, nil
}

// Tags returns a copy of the record's tags in stored order.
func (r *Record) Tags() []string {
	return slices.Clone(r.tags)
}

// HasTag reports whether tag occurs in the record.
func (r *Record) HasTag(tag string) bool {
	return slices.Contains(r.tags, tag)
}

// AddTag appends tag. Duplicates are allowed.
func (r *Record) AddTag(tag string) {
	r.tags = append(r.tags, tag)
}

// SetTags replaces every tag.
func (r *Record) SetTags(tags []string) {
	r.tags = slices.Clone(tags)
}

// RemoveTag removes the first occurrence of tag. It returns an error
// wrapping apperr.ErrNotFound, and leaves the tags unchanged, when tag is
// absent.
func (r *Record) RemoveTag(tag string) error {
	i := slices.Index(r.tags, tag)
	if i < 0 {
		return fmt.Errorf("record: tag %q: %w", tag, apperr.ErrNotFound)
	}
	r.tags = slices.Delete(r.tags, i, i+1)
	return nil
}

// SetDate sets the creation date; nil clears it in memory only.
func (r *Record) SetDate(t *time.Time) {
	if t == nil {
		r.Date = nil
		return
	}
	d := *t
	r.Date = &d
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{Path: r.Path, tags: slices.Clone(r.tags)}
	c.SetDate(r.Date)
	return c
}

// WriteTags replaces the stored subject array with the record's tags.
func (r *Record) WriteTags(store xmp.Store) error {
	return update(store, r.Path, func(h xmp.Handle) error {
		if err := h.DeleteProperty(xmp.SchemaDC, xmp.PropSubject); err != nil {
			return err
		}
		for _, tag := range r.tags {
			if err := h.AppendArrayItem(xmp.SchemaDC, xmp.PropSubject, xmp.ValueIsArray|xmp.ArrayIsUnordered, tag); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteCreatedDate writes the record's date to every date field. A record
// without a date leaves the stored fields untouched.
func (r *Record) WriteCreatedDate(store xmp.Store) error {
	if r.Date == nil {
		return nil
	}
	v := dates.Format(*r.Date)
	return update(store, r.Path, func(h xmp.Handle) error {
		for _, f := range dateFields {
			if err := h.SetProperty(f.schema, f.name, v, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteAll writes tags and then the date, stopping at the first failure.
// It is not atomic: a date failure does not undo the tag write.
func (r *Record) WriteAll(store xmp.Store) error {
	if err := r.WriteTags(store); err != nil {
		return err
	}
	return r.WriteCreatedDate(store)
}

// update runs fn against an update handle. The handle is always closed:
// changes are committed when fn succeeds and discarded otherwise.
func update(store xmp.Store, path string, fn func(xmp.Handle) error) (err error) {
	h, err := store.Open(path, xmp.ModeUpdate)
	if err != nil {
		return err
	}
	defer func() {
		flags := xmp.CloseSafeUpdate
		if err != nil {
			flags = xmp.CloseDiscard
		}
		if cerr := h.Close(flags); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(h)
}
