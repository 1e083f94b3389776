package cache

import (
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// bucketHash and etag both hash over (path, size, mtime) as spec'd, but
// bucketHash only needs the path - size/mtime changes on a later put should
// still land the entry in the same bucket so replacement finds the old
// chain link instead of leaking a duplicate.
func bucketHash(path string) uint64 {
	return xxhash.Checksum64([]byte(path))
}

// ComputeETag hashes (path, size, mtime) together, matching the hot cache
// entry's ETag field as spec'd ("content hash (ETag)") - recomputed on every
// put rather than stored from the filesystem, so a replaced entry always
// gets a fresh tag even if its size happens to match the old one. Exported
// so the static server can compute the same tag for a fresh disk read
// before the bytes are (maybe) inserted into the cache.
func ComputeETag(path string, size int64, mtimeUnixNano int64) string {
	h := xxhash.New64()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(size, 36)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(mtimeUnixNano, 36)))
	sum := h.Sum64()
	return `"` + strconv.FormatUint(sum, 16) + `"`
}

func computeETag(path string, size int64, mtimeUnixNano int64) string {
	return ComputeETag(path, size, mtimeUnixNano)
}
