package upload

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
)

func buildBody(boundary string, parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString(p)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

func TestParserReadsSmallPart(t *testing.T) {
	boundary := "XBOUNDARY"
	part := "Content-Disposition: form-data; name=\"field\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"hello world"
	body := buildBody(boundary, part)

	mgr := NewManager(t.TempDir(), 10<<20, 0, 0, 0)
	p := NewParser(context.Background(), strings.NewReader(body), boundary, mgr)

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()
	if f.FieldName != "field" || f.Filename != "a.txt" {
		t.Fatalf("got field=%q filename=%q", f.FieldName, f.Filename)
	}
	if string(f.Bytes()) != "hello world" {
		t.Fatalf("got body %q", f.Bytes())
	}
	if f.Backing != BackingMemory {
		t.Fatal("expected small part to stay memory-backed")
	}

	if _, err := p.Next(); err != io.EOF {
		t.Fatalf("expected EOF after last part, got %v", err)
	}
}

func TestParserRejectsDuplicateContentDispositionParam(t *testing.T) {
	boundary := "XBOUNDARY"
	part := "Content-Disposition: form-data; name=\"a\"; name=\"b\"\r\n\r\ndata"
	body := buildBody(boundary, part)

	mgr := NewManager(t.TempDir(), 10<<20, 0, 0, 0)
	p := NewParser(context.Background(), strings.NewReader(body), boundary, mgr)
	if _, err := p.Next(); err == nil {
		t.Fatal("expected duplicate Content-Disposition parameter to be rejected")
	}
}

func TestParserRejectsHeaderFolding(t *testing.T) {
	boundary := "XBOUNDARY"
	part := "Content-Disposition: form-data; name=\"a\"\r\n continuation\r\n\r\ndata"
	body := buildBody(boundary, part)

	mgr := NewManager(t.TempDir(), 10<<20, 0, 0, 0)
	p := NewParser(context.Background(), strings.NewReader(body), boundary, mgr)
	if _, err := p.Next(); err == nil {
		t.Fatal("expected folded header line to be rejected")
	}
}

// TestUploadSpillsAboveThreshold covers the "Upload spill" scenario: a
// part larger than the in-memory threshold produces exactly one temporary
// file whose size equals the part size, unlinked on Close.
func TestUploadSpillsAboveThreshold(t *testing.T) {
	boundary := "XBOUNDARY"
	payload := bytes.Repeat([]byte("A"), 2<<20) // 2 MiB, above the 1 MiB in-memory threshold
	part := "Content-Disposition: form-data; name=\"file\"; filename=\"big.bin\"\r\n\r\n" + string(payload)
	body := buildBody(boundary, part)

	tmp := t.TempDir()
	mgr := NewManager(tmp, 16<<20, 0, 0, 0)
	p := NewParser(context.Background(), strings.NewReader(body), boundary, mgr)

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Backing != BackingDisk {
		t.Fatal("expected large part to spill to disk")
	}
	if f.Size != int64(len(payload)) {
		t.Fatalf("expected spilled file size %d, got %d", len(payload), f.Size)
	}
	path := f.Path()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file to exist: %v", err)
	}
	f.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be unlinked after Close")
	}
}

func TestPersistSuppressesUnlink(t *testing.T) {
	boundary := "XBOUNDARY"
	payload := bytes.Repeat([]byte("B"), 2<<20)
	part := "Content-Disposition: form-data; name=\"file\"; filename=\"big.bin\"\r\n\r\n" + string(payload)
	body := buildBody(boundary, part)

	tmp := t.TempDir()
	mgr := NewManager(tmp, 16<<20, 0, 0, 0)
	p := NewParser(context.Background(), strings.NewReader(body), boundary, mgr)

	f, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	dest := tmp + "/persisted.bin"
	if err := f.Persist(dest); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected persisted file to exist: %v", err)
	}
}
