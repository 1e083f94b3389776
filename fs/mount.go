// Package fs resolves static-mount request paths to filesystem paths and
// enforces each mount's security policy - the allowed/blocked extension
// sets, hidden-file and symlink rules, and traversal rejection the static
// server's pipeline step 1 requires. Grounded on the teacher's
// MountpathInfo path-joining conventions (fs/content.go, fs/vmd.go) and its
// content-type registry shape, adapted here from object-FQN resolution to
// mount-prefix resolution.
package fs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/sys"
)

// Policy is a static mount's security policy (spec.md's "Static mount"
// data model: allowed/blocked extension sets, max file size, symlink
// prohibition, directory-listing flag, hidden-file flag).
type Policy struct {
	AllowedExt        map[string]struct{} // empty = allow all except Blocked
	BlockedExt        map[string]struct{}
	MaxFileSize       int64
	AllowSymlinks     bool
	EnableDirListing  bool
	EnableHiddenFiles bool
}

// NewPolicy builds a Policy from the config-level extension lists (each
// entry normalised to a leading-dot, lowercase form).
func NewPolicy(allowed, blocked []string, maxFileSize int64, allowSymlinks, dirListing, hiddenFiles bool) Policy {
	p := Policy{
		MaxFileSize:       maxFileSize,
		AllowSymlinks:     allowSymlinks,
		EnableDirListing:  dirListing,
		EnableHiddenFiles: hiddenFiles,
	}
	if len(allowed) > 0 {
		p.AllowedExt = normalizeExtSet(allowed)
	}
	p.BlockedExt = normalizeExtSet(blocked)
	return p
}

func normalizeExtSet(exts []string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = struct{}{}
	}
	return m
}

// ExtAllowed reports whether name's extension passes the policy's
// allowed/blocked sets.
func (p Policy) ExtAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, blocked := p.BlockedExt[ext]; blocked {
		return false
	}
	if p.AllowedExt == nil {
		return true
	}
	_, ok := p.AllowedExt[ext]
	return ok
}

// Mount is one static mount: a normalised prefix, an absolute root
// directory, a security policy, and the cache it's bound to (the cache
// itself lives in package cache; Mount only stores an opaque name so
// callers in server/static can look it up without an import cycle).
type Mount struct {
	Prefix    string
	Root      string // absolute
	Policy    Policy
	CacheName string
}

// NewMount normalises prefix (always leading- and never trailing-slash,
// except the root mount "/") and resolves root to an absolute path.
func NewMount(prefix, root string, policy Policy, cacheName string) (*Mount, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, cmn.ErrInput("static mount root %q: %v", root, err)
	}
	prefix = normalizePrefix(prefix)
	return &Mount{Prefix: prefix, Root: root, Policy: policy, CacheName: cacheName}, nil
}

func normalizePrefix(p string) string {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// Matches reports whether reqPath falls under this mount, and if so
// returns the path relative to the mount root (always without a leading
// slash).
func (m *Mount) Matches(reqPath string) (rel string, ok bool) {
	if m.Prefix == "/" {
		return strings.TrimPrefix(reqPath, "/"), true
	}
	if reqPath == m.Prefix {
		return "", true
	}
	if strings.HasPrefix(reqPath, m.Prefix+"/") {
		return strings.TrimPrefix(reqPath, m.Prefix+"/"), true
	}
	return "", false
}

// Resolve implements spec.md step 1: reject traversal, absolute drives,
// hidden files and disallowed extensions up front, then join against the
// mount root and verify the join didn't escape it even after symlink
// expansion (property 4: "the resolved filesystem path begins with
// mount_root after symlink expansion; otherwise the request returns 403").
func (m *Mount) Resolve(rel string) (absPath string, err error) {
	if sys.HasTraversal(rel) {
		return "", cmn.ErrPolicyStatus(403, "path traversal rejected: %s", rel)
	}
	if filepath.IsAbs(rel) || hasVolumePrefix(rel) {
		return "", cmn.ErrPolicyStatus(403, "absolute path rejected: %s", rel)
	}
	if !m.Policy.EnableHiddenFiles && hasHiddenComponent(rel) {
		return "", cmn.ErrPolicyStatus(403, "hidden path rejected: %s", rel)
	}
	if rel != "" && !m.Policy.ExtAllowed(rel) {
		return "", cmn.ErrPolicyStatus(403, "extension rejected: %s", rel)
	}

	joined := filepath.Join(m.Root, filepath.FromSlash(rel))
	if joined != m.Root && !strings.HasPrefix(joined, m.Root+string(filepath.Separator)) {
		return "", cmn.ErrPolicyStatus(403, "resolved path escapes mount root: %s", rel)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return joined, nil // let the caller's stat step produce the 404
		}
		return "", cmn.ErrIOStatus(500, err, "resolving %s", joined)
	}
	if resolved != m.Root && !strings.HasPrefix(resolved, m.Root+string(filepath.Separator)) {
		return "", cmn.ErrPolicyStatus(403, "symlink escapes mount root: %s", rel)
	}
	if resolved != joined && !m.Policy.AllowSymlinks {
		return "", cmn.ErrPolicyStatus(403, "symlinks not permitted: %s", rel)
	}
	return joined, nil
}

func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "" && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func hasVolumePrefix(p string) bool {
	return len(filepath.VolumeName(p)) > 0
}

// ByDescendingPrefixLen sorts mounts by descending prefix length, matching
// spec.md's two-phase route-matching order ("static-mount prefix match
// (linear over mounts ordered by descending prefix length) takes
// precedence").
type ByDescendingPrefixLen []*Mount

func (s ByDescendingPrefixLen) Len() int      { return len(s) }
func (s ByDescendingPrefixLen) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s ByDescendingPrefixLen) Less(i, j int) bool {
	return len(s[i].Prefix) > len(s[j].Prefix)
}
