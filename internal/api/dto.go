package api

import (
	"github.com/starford/mediatag/internal/catalog"
	"github.com/starford/mediatag/internal/library"
)

// RecordDetail is the full record response type (aliased from the domain layer).
type RecordDetail = library.Detail

// RecordListResponse wraps paginated record listings.
type RecordListResponse struct {
	Records []RecordDetail `json:"records" validate:"required"`
	Total   int            `json:"total" example:"42" validate:"required"`
}

// PutRecordRequest replaces the tags of a record and optionally its date.
type PutRecordRequest struct {
	Tags []string `json:"tags" example:"beach,family" validate:"required"`
	Date string   `json:"date,omitempty" example:"2021-05-01T08:00:00Z"`
}

// PatchRecordRequest adds and removes individual tags and optionally sets the date.
type PatchRecordRequest struct {
	Add    []string `json:"add,omitempty" example:"sunset"`
	Remove []string `json:"remove,omitempty" example:"beach"`
	Date   string   `json:"date,omitempty" example:"2019:07:04 18:30:00"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = catalog.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// TagsResponse lists matching tags from the vocabulary.
type TagsResponse struct {
	Tags []string `json:"tags" example:"beach,sunset" validate:"required"`
}

// RescanResponse reports the outcome of a library rescan.
type RescanResponse struct {
	Indexed   int `json:"indexed" example:"12"`
	Unchanged int `json:"unchanged" example:"340"`
	Removed   int `json:"removed" example:"1"`
	Failed    int `json:"failed" example:"0"`
}
