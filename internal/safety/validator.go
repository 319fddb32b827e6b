package safety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrProtectedPath = errors.New("protected path")
	ErrOutsideRoot   = errors.New("outside cleaned root")
	ErrTraversal     = errors.New("path traversal detected")
	ErrRootTarget    = errors.New("root is not a removable entry")
)

// Guard enforces the safety contract for every removal inside one tree
type Guard struct {
	Root           string
	ProtectedPaths []string
}

// NewGuard creates a guard for the tree rooted at root, with optional
// additional protected paths
func NewGuard(root string, extraProtected []string) *Guard {
	if strings.TrimSpace(root) != "" {
		root = filepath.Clean(root)
	}
	return &Guard{
		Root:           root,
		ProtectedPaths: defaultProtected(extraProtected),
	}
}

// ValidateRoot refuses to operate on system-critical directories.
// The root is resolved to an absolute path first, so "." is checked as the
// current working directory.
func (g *Guard) ValidateRoot() error {
	abs, err := NormalizePath(g.Root)
	if err != nil {
		return err
	}
	if IsProtectedPath(abs, g.ProtectedPaths) {
		return ErrProtectedPath
	}
	return nil
}

// ValidateDeleteTarget authorizes removal of a leaf entry.
// The target must lie strictly below the root.
func (g *Guard) ValidateDeleteTarget(path string) error {
	if err := g.ValidateWithinRoot(path); err != nil {
		return err
	}
	if filepath.Clean(path) == g.Root {
		return ErrRootTarget
	}
	return nil
}

// ValidateWithinRoot authorizes removal of an emptied directory.
// The root itself is accepted.
func (g *Guard) ValidateWithinRoot(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrInvalidPath
	}
	// A root given as "../stage" is legitimate; only unresolved segments count
	if path != filepath.Clean(path) && DetectTraversal(path) {
		return ErrTraversal
	}
	if !hasPathPrefix(path, g.Root) {
		return ErrOutsideRoot
	}
	return nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	parts := strings.Split(filepath.ToSlash(raw), "/")
	for _, p := range parts {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsProtectedPath reports whether path is one of the protected system
// directories. Only exact matches count: staging trees routinely live
// below /usr or /var.
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)

	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		if p == filepath.Clean(prot) {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path equals root or lies below it.
// Relative paths are compared lexically, so a root of "." accepts every
// relative path that does not climb out of it.
func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

// defaultProtected returns the base set of protected paths plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/bin",
		"/boot",
		"/dev",
		"/etc",
		"/home",
		"/lib",
		"/lib64",
		"/proc",
		"/root",
		"/sbin",
		"/sys",
		"/usr",
		"/var",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		base = append(base, home)
	}
	return append(base, extra...)
}
