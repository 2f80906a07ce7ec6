package xmp

import (
	"bytes"
	"errors"
	"io"
)

const (
	scanChunk = 1 << 20
	maxPacket = 16 << 20
)

var (
	markerBegin   = []byte("<?xpacket begin=")
	markerEnd     = []byte("<?xpacket end=")
	markerPIClose = []byte("?>")
	markerMeta    = []byte("<x:xmpmeta")
	markerMetaEnd = []byte("</x:xmpmeta>")
)

// region is the byte span of an embedded packet within its file.
type region struct {
	off int64
	n   int64
}

// indexFrom returns the absolute offset of the first marker at or after
// from, or -1. The file is read in chunks so large videos are never loaded
// whole.
func indexFrom(r io.ReaderAt, size, from int64, marker []byte) (int64, error) {
	buf := make([]byte, scanChunk+len(marker)-1)
	for off := from; off < size; off += scanChunk {
		want := min(int64(len(buf)), size-off)
		n, err := r.ReadAt(buf[:want], off)
		if err != nil && !errors.Is(err, io.EOF) {
			return -1, err
		}
		if i := bytes.Index(buf[:n], marker); i >= 0 {
			return off + int64(i), nil
		}
	}
	return -1, nil
}

// locatePacket finds the XMP packet embedded in a file. The xpacket wrapper
// is preferred because its padding allows in-place rewrites; a bare
// x:xmpmeta element is accepted as a fallback.
func locatePacket(r io.ReaderAt, size int64) (region, bool, error) {
	start, err := indexFrom(r, size, 0, markerBegin)
	if err != nil {
		return region{}, false, err
	}
	if start >= 0 {
		end, err := indexFrom(r, size, start, markerEnd)
		if err != nil {
			return region{}, false, err
		}
		if end >= 0 {
			closing, err := indexFrom(r, size, end, markerPIClose)
			if err != nil {
				return region{}, false, err
			}
			if closing >= 0 {
				n := closing + int64(len(markerPIClose)) - start
				if n <= maxPacket {
					return region{off: start, n: n}, true, nil
				}
			}
		}
	}

	start, err = indexFrom(r, size, 0, markerMeta)
	if err != nil || start < 0 {
		return region{}, false, err
	}
	end, err := indexFrom(r, size, start, markerMetaEnd)
	if err != nil || end < 0 {
		return region{}, false, err
	}
	n := end + int64(len(markerMetaEnd)) - start
	if n > maxPacket {
		return region{}, false, nil
	}
	return region{off: start, n: n}, true, nil
}

func readRegion(r io.ReaderAt, reg region) ([]byte, error) {
	buf := make([]byte, reg.n)
	if _, err := r.ReadAt(buf, reg.off); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}
