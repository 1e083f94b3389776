package static

import (
	"strconv"
	"strings"

	"github.com/catzilla-go/catzilla/cmn"
)

// byteRange is a single inclusive [start, end] span.
type byteRange struct {
	start, end int64
}

// ApplyRange narrows a fresh (non-cache-hit) Response to the single range
// named by a Range header value, per Open Question (i)'s resolution: range
// assembly is implemented for cold static-server reads only, never for
// hot-cache hits, which are always served whole. A malformed or
// multi-range header is rejected with 416, matching the failure mapping's
// "range-not-satisfiable -> 416".
func (r *Response) ApplyRange(rangeHeader string) error {
	if r.fromCache {
		return nil // hot-cache hits are served whole; the Range header is ignored
	}
	totalSize := r.Headers.ContentLength
	rg, err := parseRange(rangeHeader, totalSize)
	if err != nil {
		return err
	}
	if r.Body != nil {
		r.Body = r.Body[rg.start : rg.end+1]
	}
	r.Status = 206
	r.Headers.ContentLength = rg.end - rg.start + 1
	if r.Headers.Extra == nil {
		r.Headers.Extra = map[string]string{}
	}
	r.Headers.Extra["Content-Range"] = "bytes " + strconv.FormatInt(rg.start, 10) + "-" +
		strconv.FormatInt(rg.end, 10) + "/" + strconv.FormatInt(totalSize, 10)
	return nil
}

func parseRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, cmn.ErrPolicyStatus(416, "unsupported range unit: %s", header)
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, cmn.ErrPolicyStatus(416, "multi-range requests are not supported")
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, cmn.ErrPolicyStatus(416, "malformed range: %s", header)
	}

	var start, end int64
	var err error
	switch {
	case parts[0] == "" && parts[1] != "": // suffix range: bytes=-N
		n, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil {
			return byteRange{}, cmn.ErrPolicyStatus(416, "malformed range: %s", header)
		}
		if n > size {
			n = size
		}
		start, end = size-n, size-1
	case parts[1] == "": // open-ended: bytes=N-
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return byteRange{}, cmn.ErrPolicyStatus(416, "malformed range: %s", header)
		}
		end = size - 1
	default:
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return byteRange{}, cmn.ErrPolicyStatus(416, "malformed range: %s", header)
		}
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return byteRange{}, cmn.ErrPolicyStatus(416, "malformed range: %s", header)
		}
	}

	if start < 0 || end >= size || start > end {
		return byteRange{}, cmn.ErrPolicyStatus(416, "range not satisfiable: %s", header)
	}
	return byteRange{start: start, end: end}, nil
}
