// Package models defines the shared value types of the media library.
package models

import "time"

// MediaFile is a lightweight listing entry for one file in the library.
type MediaFile struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	Fingerprint string    `json:"fingerprint"`
}
