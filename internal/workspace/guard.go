// Package workspace decides whether a path may be read or written.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Intent is the kind of I/O a caller wants to perform on a path.
type Intent string

const (
	IntentRead  Intent = "read"
	IntentWrite Intent = "write"
)

// Decision is the outcome of an access check. Reason is a human-readable
// denial message and is empty when Approved is true.
type Decision struct {
	Approved bool
	// Path is the absolute, cleaned path to use for I/O when approved.
	Path   string
	Reason string
}

// AccessChecker approves or denies a path for a given intent without performing I/O on it.
type AccessChecker interface {
	Check(path string, intent Intent) Decision
}

// SymlinkResolver resolves symbolic links; filesystem.DefaultFileSystemAdapter satisfies it.
type SymlinkResolver interface {
	EvalSymlinks(path string) (string, error)
}

type osResolver struct{}

func (osResolver) EvalSymlinks(path string) (string, error) { return filepath.EvalSymlinks(path) }

// Option configures a Guard.
type Option func(*Guard)

// WithDenyPatterns denies every intent on workspace-relative paths matching any pattern.
func WithDenyPatterns(patterns ...string) Option {
	return func(g *Guard) { g.deny = append(g.deny, patterns...) }
}

// WithReadOnlyPatterns denies writes on workspace-relative paths matching any pattern.
func WithReadOnlyPatterns(patterns ...string) Option {
	return func(g *Guard) { g.readOnly = append(g.readOnly, patterns...) }
}

// WithSymlinkResolver replaces the resolver used to detect links escaping the root.
func WithSymlinkResolver(r SymlinkResolver) Option {
	return func(g *Guard) { g.resolver = r }
}

// Guard confines access to a workspace root.
type Guard struct {
	root         string
	resolvedRoot string
	deny         []string
	readOnly     []string
	resolver     SymlinkResolver
}

// NewGuard creates a Guard rooted at root. Patterns use doublestar syntax and are
// matched against slash-separated paths relative to root.
func NewGuard(root string, opts ...Option) (*Guard, error) {
	if root == "" {
		return nil, errors.New("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for workspace root: %w", err)
	}
	g := &Guard{root: filepath.Clean(abs), resolver: osResolver{}}
	for _, opt := range opts {
		opt(g)
	}
	for _, p := range append(append([]string{}, g.deny...), g.readOnly...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid path pattern %q", p)
		}
	}
	resolved, err := g.resolver.EvalSymlinks(g.root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve workspace root %s: %w", g.root, err)
	}
	g.resolvedRoot = resolved
	return g, nil
}

// Root returns the absolute workspace root.
func (g *Guard) Root() string { return g.root }

// Check implements AccessChecker.
func (g *Guard) Check(path string, intent Intent) Decision {
	if strings.TrimSpace(path) == "" {
		return deny("File path is required.")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.root, abs)
	}
	abs = filepath.Clean(abs)

	if !within(g.root, abs) {
		return deny(fmt.Sprintf("File path must be within the workspace root (%s): %s", g.root, path))
	}
	if resolved := g.resolveExisting(abs); !within(g.resolvedRoot, resolved) {
		return deny(fmt.Sprintf("File path %s resolves outside the workspace root via a symbolic link.", path))
	}

	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return deny(fmt.Sprintf("File path %s could not be made relative to the workspace root.", path))
	}
	rel = filepath.ToSlash(rel)
	if p, ok := matchAny(g.deny, rel); ok {
		return deny(fmt.Sprintf("Access to %s is denied by workspace pattern %q.", rel, p))
	}
	if intent == IntentWrite {
		if p, ok := matchAny(g.readOnly, rel); ok {
			return deny(fmt.Sprintf("%s is read-only (workspace pattern %q).", rel, p))
		}
	}
	return Decision{Approved: true, Path: abs}
}

// resolveExisting resolves symlinks on the longest existing prefix of p and
// re-attaches the components that do not exist yet.
func (g *Guard) resolveExisting(p string) string {
	var missing []string
	cur := p
	for {
		resolved, err := g.resolver.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		if !errors.Is(err, os.ErrNotExist) {
			return p
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchAny(patterns []string, rel string) (string, bool) {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return p, true
		}
	}
	return "", false
}

func deny(reason string) Decision {
	return Decision{Approved: false, Reason: reason}
}

var _ AccessChecker = (*Guard)(nil)
