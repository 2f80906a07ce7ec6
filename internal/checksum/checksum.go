package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint identifies a media file revision without reading its content:
// size and mtime of the file plus the mtime of its sidecar (zero if absent).
func Fingerprint(size int64, modTime, sidecarModTime time.Time) string {
	buf := make([]byte, 0, 64)
	buf = strconv.AppendInt(buf, size, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, modTime.UnixNano(), 10)
	buf = append(buf, ':')
	if !sidecarModTime.IsZero() {
		buf = strconv.AppendInt(buf, sidecarModTime.UnixNano(), 10)
	}
	return Sum(buf)[:32]
}
