package upload

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"strings"

	"github.com/catzilla-go/catzilla/cmn"
)

// State is the multipart streaming parser's position in the state machine
// spec.md 4.G names: preamble -> boundary -> part-headers -> part-body ->
// (next-boundary | epilogue). Next only ever sets StatePreamble,
// StatePartHeaders, StatePartBody and StateDone: boundary lines are
// consumed inside those steps, and the final boundary leads straight to
// StateDone.
type State int

const (
	StatePreamble State = iota
	StateBoundary
	StatePartHeaders
	StatePartBody
	StateEpilogue
	StateDone
)

// mediumMax is the in-memory threshold: a part's body stays buffered (
// growing through the Medium class) until it crosses this size, at which
// point its buffered contents are flushed to a temporary file and the rest
// of the part streams straight to disk.
const mediumMax = int64(classSizes[Large])

// Parser streams a multipart/form-data body, yielding one *File per part.
type Parser struct {
	ctx   context.Context
	br    *bufio.Reader
	mgr   *Manager
	state State

	dashBoundary  []byte
	finalBoundary []byte
}

// NewParser constructs a Parser for body, whose parts are delimited by
// boundary (the value from the request's Content-Type parameter, without
// the leading "--").
func NewParser(ctx context.Context, body io.Reader, boundary string, mgr *Manager) *Parser {
	return &Parser{
		ctx:           ctx,
		br:            bufio.NewReaderSize(body, 64<<10),
		mgr:           mgr,
		state:         StatePreamble,
		dashBoundary:  []byte("--" + boundary),
		finalBoundary: []byte("--" + boundary + "--"),
	}
}

// Next advances the parser to the next part and returns its fully-read
// upload-file record, or io.EOF once the epilogue is reached. The caller
// must Close each returned *File.
func (p *Parser) Next() (*File, error) {
	if p.state == StatePreamble {
		if done, err := p.consumeThroughBoundary(); err != nil {
			return nil, err
		} else if done {
			p.state = StateDone
			return nil, io.EOF
		}
		p.state = StatePartHeaders
	}
	if p.state == StateDone {
		return nil, io.EOF
	}

	fieldName, filename, contentType, err := p.readPartHeaders()
	if err != nil {
		return nil, err
	}
	p.state = StatePartBody

	f, done, err := p.readPartBody(fieldName, filename, contentType)
	if err != nil {
		return nil, err
	}
	if done {
		p.state = StateDone
	} else {
		p.state = StatePartHeaders
	}
	return f, nil
}

// consumeThroughBoundary reads lines until it finds the dash-boundary
// (more parts follow) or the final boundary (epilogue, no more parts),
// discarding anything before it - the preamble.
func (p *Parser) consumeThroughBoundary() (done bool, err error) {
	for {
		line, err := p.readLine()
		if err != nil {
			return false, cmn.ErrInput("multipart body ended before first boundary: %v", err)
		}
		if bytes.Equal(line, p.finalBoundary) {
			return true, nil
		}
		if bytes.Equal(line, p.dashBoundary) {
			return false, nil
		}
	}
}

// readLine returns one line with its trailing CRLF or LF stripped.
func (p *Parser) readLine() ([]byte, error) {
	line, err := p.br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

// readPartHeaders implements the header-folding and duplicate-parameter
// deviations Open Question (ii) resolved: a continuation (folded) header
// line is a parse error, and a duplicate parameter within one part's
// Content-Disposition value is a parse error - neither is silently
// tolerated the way a lenient real-world parser would.
func (p *Parser) readPartHeaders() (fieldName, filename, contentType string, err error) {
	var contentDisposition string
	sawContentDisposition := false

	for {
		line, rerr := p.readLine()
		if rerr != nil {
			return "", "", "", cmn.ErrInput("multipart part headers truncated: %v", rerr)
		}
		if len(line) == 0 {
			break // blank line: end of this part's headers
		}
		if line[0] == ' ' || line[0] == '\t' {
			return "", "", "", cmn.ErrInput("multipart header folding is not supported")
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return "", "", "", cmn.ErrInput("malformed multipart header line: %q", line)
		}
		switch strings.ToLower(name) {
		case "content-disposition":
			if sawContentDisposition {
				return "", "", "", cmn.ErrInput("duplicate Content-Disposition header in multipart part")
			}
			sawContentDisposition = true
			contentDisposition = value
		case "content-type":
			contentType = value
		}
	}

	if !sawContentDisposition {
		return "", "", "", cmn.ErrInput("multipart part missing Content-Disposition header")
	}
	fieldName, filename, err = parseContentDisposition(contentDisposition)
	if err != nil {
		return "", "", "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return fieldName, filename, contentType, nil
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return string(bytes.TrimSpace(line[:idx])), string(bytes.TrimSpace(line[idx+1:])), true
}

// parseContentDisposition parses the "form-data; name=...; filename=..."
// value, rejecting a duplicate parameter key outright rather than keeping
// the first occurrence.
func parseContentDisposition(value string) (fieldName, filename string, err error) {
	_, params, perr := mime.ParseMediaType(value)
	if perr != nil {
		return "", "", cmn.ErrInput("malformed Content-Disposition: %v", perr)
	}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			return "", "", cmn.ErrInput("duplicate Content-Disposition parameter %q", key)
		}
		seen[key] = struct{}{}
	}
	return params["name"], params["filename"], nil
}

// readPartBody streams bytes until the next boundary line, routing the
// part through the small/medium/large strategies as its size crosses each
// threshold, and reports whether the final boundary (epilogue) was seen.
func (p *Parser) readPartBody(fieldName, filename, contentType string) (f *File, done bool, err error) {
	uf := &File{FieldName: fieldName, Filename: filename, ContentType: contentType, mgr: p.mgr}
	uf.class = Small
	if err := p.mgr.acquire(p.ctx, int64(classSizes[Small])); err != nil {
		return nil, false, cmn.ErrResource("backpressure watermark: %v", err)
	}
	uf.buf = p.mgr.pool.Get(Small)

	// first tracks whether we've written any content line yet: the CRLF
	// between two content lines is only known to be content - rather than
	// the delimiter's own CRLF - once the following line turns out not to
	// be a boundary marker, so it's written lazily, one line behind.
	first := true
	for {
		line, rerr := p.readLine()
		if rerr != nil {
			uf.Close()
			return nil, false, cmn.ErrInput("multipart part body truncated: %v", rerr)
		}
		if bytes.Equal(line, p.dashBoundary) {
			uf.Size = currentSize(uf)
			return uf, false, nil
		}
		if bytes.Equal(line, p.finalBoundary) {
			uf.Size = currentSize(uf)
			return uf, true, nil
		}

		if !first {
			if err := p.appendChunk(uf, crlf); err != nil {
				uf.Close()
				return nil, false, err
			}
		}
		if err := p.appendChunk(uf, line); err != nil {
			uf.Close()
			return nil, false, err
		}
		first = false
	}
}

var crlf = []byte{'\r', '\n'}

func currentSize(f *File) int64 {
	if f.Backing == BackingDisk {
		info, err := f.diskFile.Stat()
		if err == nil {
			return info.Size()
		}
		return 0
	}
	return int64(len(f.Bytes()))
}

// appendChunk writes chunk to uf, transparently growing the in-memory
// buffer's size class or spilling to disk once mediumMax is crossed.
func (p *Parser) appendChunk(uf *File, chunk []byte) error {
	if uf.Backing == BackingDisk {
		_, err := uf.diskFile.Write(chunk)
		if err != nil {
			return cmn.ErrIO(err, "writing upload spill file")
		}
		if p.mgr.stats != nil {
			p.mgr.stats.RecordUploadBytes(int64(len(chunk)))
		}
		return nil
	}

	projected := int64(len(uf.Bytes())) + int64(len(chunk))
	if projected > mediumMax {
		return p.spillToDisk(uf, chunk)
	}
	if projected > int64(classSizes[uf.class]) {
		if err := p.growClass(uf); err != nil {
			return err
		}
	}
	uf.buf.B = append(uf.buf.B, chunk...)
	if p.mgr.stats != nil {
		p.mgr.stats.RecordUploadBytes(int64(len(chunk)))
	}
	return nil
}

// growClass upgrades uf's in-memory buffer to the next larger size class,
// acquiring the watermark delta first.
func (p *Parser) growClass(uf *File) error {
	next := uf.class + 1
	if next >= numClasses {
		next = numClasses - 1
	}
	delta := int64(classSizes[next] - classSizes[uf.class])
	if delta > 0 {
		if err := p.mgr.acquire(p.ctx, delta); err != nil {
			return cmn.ErrResource("backpressure watermark: %v", err)
		}
	}
	nb := p.mgr.pool.Get(next)
	nb.B = append(nb.B, uf.buf.B...)
	p.mgr.pool.Put(uf.class, uf.buf)
	uf.buf = nb
	uf.class = next
	return nil
}

// spillToDisk flushes uf's buffered bytes (plus the triggering chunk) to a
// new temp file and marks uf disk-backed for the remainder of the part.
func (p *Parser) spillToDisk(uf *File, chunk []byte) error {
	f, path, err := p.mgr.newTempFile()
	if err != nil {
		return err
	}
	if _, err := f.Write(uf.buf.B); err != nil {
		f.Close()
		return cmn.ErrIO(err, "flushing upload buffer to spill file")
	}
	if _, err := f.Write(chunk); err != nil {
		f.Close()
		return cmn.ErrIO(err, "writing upload spill file")
	}
	p.mgr.pool.Put(uf.class, uf.buf)
	p.mgr.release(int64(classSizes[uf.class]))
	uf.buf = nil
	uf.Backing = BackingDisk
	uf.diskFile = f
	uf.tempPath = path
	if p.mgr.stats != nil {
		p.mgr.stats.RecordUploadSpill()
		p.mgr.stats.RecordUploadBytes(int64(len(chunk)))
	}
	return nil
}
