package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeScanner lets tests control the verdict returned and count calls,
// standing in for a real daemon/process Scanner.
type fakeScanner struct {
	calls  int
	result Result
	err    error
}

func (f *fakeScanner) Scan(ctx context.Context, path string) (Result, error) {
	f.calls++
	return f.result, f.err
}
func (f *fakeScanner) Status() Status           { return DaemonRunning }
func (f *fakeScanner) Version() (string, error) { return "fake-1.0", nil }

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCachingScannerSkipsRedundantScan(t *testing.T) {
	inner := &fakeScanner{result: Result{Verdict: Clean}}
	cs := NewCachingScanner(inner, time.Minute)
	path := writeTemp(t, "identical bytes")

	if _, err := cs.Scan(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Scan(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 underlying scan, got %d", inner.calls)
	}
	if got := cs.Stats().CacheHits; got != 1 {
		t.Fatalf("expected 1 cache hit, got %d", got)
	}
}

func TestCachingScannerExpiresAfterTTL(t *testing.T) {
	inner := &fakeScanner{result: Result{Verdict: Clean}}
	cs := NewCachingScanner(inner, time.Millisecond)
	path := writeTemp(t, "short ttl content")

	if _, err := cs.Scan(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cs.Scan(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected cache entry to expire and re-scan, got %d calls", inner.calls)
	}
}

func TestCachingScannerRescansChangedContent(t *testing.T) {
	inner := &fakeScanner{result: Result{Verdict: Clean}}
	cs := NewCachingScanner(inner, time.Minute)
	path := filepath.Join(t.TempDir(), "mutable.bin")

	os.WriteFile(path, []byte("version one"), 0o644)
	if _, err := cs.Scan(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(path, []byte("version two, different bytes"), 0o644)
	if _, err := cs.Scan(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected distinct content hash to bypass cache, got %d calls", inner.calls)
	}
}

func TestCachingScannerStatsAccumulate(t *testing.T) {
	inner := &fakeScanner{result: Result{Verdict: Infected, ThreatName: "Eicar-Test-Signature"}}
	cs := NewCachingScanner(inner, time.Minute)
	path := writeTemp(t, "eicar-like payload")

	res, err := cs.Scan(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict != Infected || res.ThreatName != "Eicar-Test-Signature" {
		t.Fatalf("unexpected result %+v", res)
	}
	stats := cs.Stats()
	if stats.FilesScanned != 1 || stats.ThreatsFound != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExtractThreatNameFromCleanStyleLine(t *testing.T) {
	line := "/tmp/upload/big.bin: Win.Test.EICAR_HDB-1 FOUND\n"
	if got := extractThreatName(line); got != "Win.Test.EICAR_HDB-1" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractThreatNameFallsBackToWholeLine(t *testing.T) {
	line := "unparseable scanner output"
	if got := extractThreatName(line); got != line {
		t.Fatalf("got %q", got)
	}
}

func TestParseDaemonResponseClean(t *testing.T) {
	res := parseDaemonResponse("OK\n")
	if res.Verdict != Clean {
		t.Fatalf("expected clean, got %v", res.Verdict)
	}
}

func TestParseDaemonResponseInfected(t *testing.T) {
	res := parseDaemonResponse("FOUND Eicar-Test-Signature\n")
	if res.Verdict != Infected || res.ThreatName != "Eicar-Test-Signature" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestParseDaemonResponseUnrecognized(t *testing.T) {
	res := parseDaemonResponse("garbage\n")
	if res.Verdict != ScanError {
		t.Fatalf("expected scan error verdict, got %v", res.Verdict)
	}
}

func TestProcessScannerStatusNotFoundForMissingBinary(t *testing.T) {
	ps := NewProcessScanner("catzilla-definitely-not-a-real-binary", nil, Config{})
	if ps.Status() != NotFound {
		t.Fatal("expected NotFound for a nonexistent binary")
	}
}

func TestConfigFillDefaults(t *testing.T) {
	var cfg Config
	cfg.fillDefaults()
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected default 30s timeout, got %v", cfg.Timeout)
	}
}
