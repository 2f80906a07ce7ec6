// Package tagindex builds the deduplicated tag vocabulary of a record
// collection and answers substring queries against it.
package tagindex

import (
	"slices"
	"strings"

	"github.com/starford/mediatag/internal/record"
)

// Index is an immutable, sorted set of distinct tags. It is safe to share
// between goroutines; record changes are only visible after a new Build.
type Index struct {
	vocab []string
	lower []string
}

// Build collects every tag of recs, sorts by code point and removes exact
// duplicates. Tags differing only in case are kept apart.
func Build(recs []*record.Record) *Index {
	var all []string
	for _, r := range recs {
		if r != nil {
			all = append(all, r.Tags()...)
		}
	}
	return FromTags(all)
}

// FromTags builds an index from a flat tag list.
func FromTags(tags []string) *Index {
	vocab := slices.Clone(tags)
	slices.Sort(vocab)
	vocab = slices.Compact(vocab)
	lower := make([]string, len(vocab))
	for i, t := range vocab {
		lower[i] = strings.ToLower(t)
	}
	return &Index{vocab: vocab, lower: lower}
}

// Search returns the tags containing query, ignoring case, in vocabulary
// order. An empty query matches every tag.
func (x *Index) Search(query string) []string {
	if x == nil {
		return []string{}
	}
	q := strings.ToLower(query)
	out := make([]string, 0)
	for i, l := range x.lower {
		if strings.Contains(l, q) {
			out = append(out, x.vocab[i])
		}
	}
	return out
}

// Tags returns the full vocabulary.
func (x *Index) Tags() []string {
	if x == nil {
		return []string{}
	}
	return slices.Clone(x.vocab)
}

// Len is the vocabulary size.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.vocab)
}

// Contains reports whether tag is in the vocabulary, case-sensitively.
func (x *Index) Contains(tag string) bool {
	if x == nil {
		return false
	}
	_, ok := slices.BinarySearch(x.vocab, tag)
	return ok
}
