package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatchesPrefixVariants(t *testing.T) {
	m, err := NewMount("/static", "/tmp", Policy{}, "")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		path    string
		wantRel string
		wantOK  bool
	}{
		{"/static/a.txt", "a.txt", true},
		{"/static", "", true},
		{"/staticfoo", "", false},
		{"/other", "", false},
	}
	for _, c := range cases {
		rel, ok := m.Matches(c.path)
		if ok != c.wantOK || (ok && rel != c.wantRel) {
			t.Errorf("Matches(%q) = (%q, %v), want (%q, %v)", c.path, rel, ok, c.wantRel, c.wantOK)
		}
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewMount("/s", dir, Policy{}, "")
	if _, err := m.Resolve("../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestResolveRejectsHiddenByDefault(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewMount("/s", dir, Policy{}, "")
	if _, err := m.Resolve(".secret"); err == nil {
		t.Fatal("expected hidden path to be rejected")
	}
}

func TestResolveAllowsHiddenWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewMount("/s", dir, Policy{EnableHiddenFiles: true}, "")
	if _, err := m.Resolve(".secret"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestResolveRejectsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	p := NewPolicy(nil, []string{"exe"}, 0, false, false, false)
	m, _ := NewMount("/s", dir, p, "")
	if _, err := m.Resolve("virus.exe"); err == nil {
		t.Fatal("expected blocked extension to be rejected")
	}
	if _, err := m.Resolve("ok.txt"); err != nil {
		t.Fatalf("unexpected rejection of allowed extension: %v", err)
	}
}

// TestResolveRejectsSymlinkEscape covers spec property 4: the resolved path
// must begin with mount_root after symlink expansion, otherwise 403.
func TestResolveRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	m, _ := NewMount("/s", root, Policy{AllowSymlinks: true}, "")
	if _, err := m.Resolve("link.txt"); err == nil {
		t.Fatal("expected symlink escaping mount root to be rejected even with AllowSymlinks")
	}
}

func TestResolveRejectsSymlinkWhenDisallowed(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}
	m, _ := NewMount("/s", root, Policy{AllowSymlinks: false}, "")
	if _, err := m.Resolve("link.txt"); err == nil {
		t.Fatal("expected symlink to be rejected when AllowSymlinks is false")
	}
}
